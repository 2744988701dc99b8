package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
	selfupdate "github.com/creativeprojects/go-selfupdate"
)

// ReleaseAsset is a downloadable file attached to a release.
type ReleaseAsset struct {
	Tag  string
	Name string
	URL  string
	Size int64
}

type releaseInfo struct {
	Tag    string
	Draft  bool
	Assets []ReleaseAsset
}

// ResolveReleaseAsset finds assetName on the release of repo ("owner/name")
// whose tag matches tag. Tags match exactly or as equal versions, so "1.0.1"
// finds "v1.0.1".
func ResolveReleaseAsset(ctx context.Context, repo, tag, assetName string) (*ReleaseAsset, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{
		APIToken: os.Getenv("GITHUB_TOKEN"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create release source: %w", err)
	}
	releases, err := source.ListReleases(ctx, selfupdate.ParseSlug(repo))
	if err != nil {
		return nil, fmt.Errorf("failed to list releases of %s: %w", repo, err)
	}

	infos := make([]releaseInfo, 0, len(releases))
	for _, rel := range releases {
		info := releaseInfo{Tag: rel.GetTagName(), Draft: rel.GetDraft()}
		for _, a := range rel.GetAssets() {
			info.Assets = append(info.Assets, ReleaseAsset{
				Tag:  info.Tag,
				Name: a.GetName(),
				URL:  a.GetBrowserDownloadURL(),
				Size: int64(a.GetSize()),
			})
		}
		infos = append(infos, info)
	}
	return pickReleaseAsset(infos, repo, tag, expandTag(assetName, tag))
}

func pickReleaseAsset(releases []releaseInfo, repo, tag, assetName string) (*ReleaseAsset, error) {
	for _, rel := range releases {
		if rel.Draft || !sameTag(rel.Tag, tag) {
			continue
		}
		for _, a := range rel.Assets {
			if a.Name == assetName {
				asset := a
				return &asset, nil
			}
		}
		names := make([]string, 0, len(rel.Assets))
		for _, a := range rel.Assets {
			names = append(names, a.Name)
		}
		return nil, fmt.Errorf("release %s of %s has no asset %q (assets: %s)",
			rel.Tag, repo, assetName, strings.Join(names, ", "))
	}
	return nil, fmt.Errorf("no release %s found in %s", tag, repo)
}

func sameTag(a, b string) bool {
	if a == b {
		return true
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	return errA == nil && errB == nil && va.Equal(vb)
}

// archiveURL returns the download URL of the package archive, resolving it
// through the release API when only a repository is configured.
func archiveURL(ctx context.Context, rc *ResolvedConfig) (string, error) {
	if url := rc.ReleaseURL(); url != "" {
		return url, nil
	}
	asset, err := ResolveReleaseAsset(ctx, rc.Config.Package.ReleaseRepo, rc.Config.Package.Tag, rc.Config.Package.AssetName)
	if err != nil {
		return "", err
	}
	return asset.URL, nil
}

// archiveFileName is the cached archive's file name for a release URL.
func archiveFileName(rc *ResolvedConfig) string {
	if url := rc.ReleaseURL(); url != "" {
		return path.Base(url)
	}
	return expandTag(rc.Config.Package.AssetName, rc.Config.Package.Tag)
}
