// Package github reads book files from a directory of a GitHub repository.
package github

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/google/go-github/v81/github"

	"github.com/bull/got-explorer/internal/ingest"
)

// RepoConfig locates the book directory.
type RepoConfig struct {
	Owner string
	Repo  string
	Path  string // directory inside the repository, "" for the root
	Ref   string // branch, tag or commit; "" for the default branch
}

// Source lists and downloads supported book files. It implements
// ingest.Source.
type Source struct {
	client *Client
	cfg    RepoConfig
}

func NewSource(client *Client, cfg RepoConfig) *Source {
	return &Source{client: client, cfg: cfg}
}

func (s *Source) String() string {
	return fmt.Sprintf("github:%s/%s/%s", s.cfg.Owner, s.cfg.Repo, s.cfg.Path)
}

func (s *Source) getOptions() *github.RepositoryContentGetOptions {
	if s.cfg.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: s.cfg.Ref}
}

// List recursively lists supported files, relative to the configured path.
func (s *Source) List(ctx context.Context) ([]string, error) {
	docs, err := s.listRecursive(ctx, s.cfg.Path, "")
	if err != nil {
		return nil, err
	}
	sort.Strings(docs)
	return docs, nil
}

func (s *Source) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := s.client.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, fullPath, s.getOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		name := item.GetName()
		if name == "" {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if ingest.Supported(name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := s.listRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}
	return docs, nil
}

// Fetch downloads one file. Files over the contents API size limit come back
// without inline content and are streamed from their download URL instead.
func (s *Source) Fetch(ctx context.Context, relativePath string) (ingest.Document, error) {
	fullPath := path.Join(s.cfg.Path, relativePath)

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, fullPath, s.getOptions())
	if err != nil {
		return ingest.Document{}, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return ingest.Document{}, fmt.Errorf("%s is not a file", fullPath)
	}

	content, err := fileContent.GetContent()
	if err == nil && content != "" {
		return ingest.Document{Name: relativePath, Data: []byte(content)}, nil
	}

	rc, _, err := s.client.Repositories.DownloadContents(ctx, s.cfg.Owner, s.cfg.Repo, fullPath, s.getOptions())
	if err != nil {
		return ingest.Document{}, fmt.Errorf("failed to download %s: %w", fullPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return ingest.Document{}, fmt.Errorf("failed to read %s: %w", fullPath, err)
	}
	return ingest.Document{Name: relativePath, Data: data}, nil
}

// Revision returns the SHA of the latest commit touching the book directory.
func (s *Source) Revision(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.cfg.Owner, s.cfg.Repo, &github.CommitsListOptions{
		SHA:         s.cfg.Ref,
		Path:        s.cfg.Path,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].GetSHA() == "" {
		return "", fmt.Errorf("no commits found for path %s", s.cfg.Path)
	}
	return commits[0].GetSHA(), nil
}
