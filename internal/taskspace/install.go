// Copyright 2026 The Switcheroo Authors
// SPDX-License-Identifier: Apache-2.0

package taskspace

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"

	"github.com/socratic-shell/theoldswitcheroo/internal/transport"
)

// ArchSpec names a version-pinned downloadable archive and the digest
// it must match before being trusted.
type ArchSpec struct {
	URL          string
	BLAKE3Digest string // hex-encoded
}

// ArchTag maps a `uname -m` output to the short architecture tag used
// to pick an archive. Unrecognized architectures fall back to
// linux-x64 with a caller-surfaced warning.
func ArchTag(unameM string) (tag string, recognized bool) {
	switch unameM {
	case "x86_64":
		return "linux-x64", true
	case "aarch64", "arm64":
		return "linux-arm64", true
	default:
		return "linux-x64", false
	}
}

// ResolveBaseDir returns override if non-empty. Otherwise it probes
// host's home directory over the multiplexed channel and derives the
// default base directory under it — the same directory
// switcheroo-agent resolves for itself via os.UserHomeDir when
// BASE_DIR is unset. The probe result is a plain
// absolute path, not the literal string "$HOME", because every
// remote command the controller builds single-quotes its arguments
// and so never expands shell variables.
func ResolveBaseDir(ctx context.Context, mux *transport.Multiplexer, host, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := mux.Execute(ctx, host, `printf '%s' "$HOME"`)
	if err != nil {
		return "", fmt.Errorf("probing remote home directory: %w", err)
	}
	if home == "" {
		return "", fmt.Errorf("host %q reported an empty $HOME", host)
	}
	return filepath.Join(home, ".theoldswitcheroo"), nil
}

// EnsureArchiveInstalled stages spec.URL under localCacheDir if not
// already there, rejects it if its BLAKE3 digest doesn't match
// spec.BLAKE3Digest, unpacks it into a local staging directory, and,
// if installDir doesn't exist on the remote host yet, uploads the
// archive itself to remoteArchivePath and unpacks it into installDir
// there (one Upload plus one remote tar invocation, rather than one
// Upload per file). The download, the local unpack and the remote
// install are each gated on an existence check, so the whole
// operation is idempotent and safe to repeat across controller
// restarts; the digest is checked on every call, so a corrupted or
// tampered download is caught before it ever reaches the remote host.
func EnsureArchiveInstalled(ctx context.Context, mux *transport.Multiplexer, host string, spec ArchSpec, localCacheDir, remoteArchivePath, installDir string) error {
	localPath := filepath.Join(localCacheDir, filepath.Base(remoteArchivePath))
	stagingDir := filepath.Join(localCacheDir, "staged-"+filepath.Base(remoteArchivePath))

	if _, err := os.Stat(localPath); os.IsNotExist(err) {
		if err := downloadToFile(ctx, spec.URL, localPath); err != nil {
			return fmt.Errorf("downloading %s: %w", spec.URL, err)
		}
	}
	if err := VerifyLocalArchiveDigest(localPath, spec.BLAKE3Digest); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("rejecting archive from %s: %w", spec.URL, err)
	}

	if _, err := os.Stat(stagingDir); os.IsNotExist(err) {
		if err := os.MkdirAll(stagingDir, 0o755); err != nil {
			return fmt.Errorf("creating staging directory %s: %w", stagingDir, err)
		}
		if err := UnpackLocalGzipTar(localPath, stagingDir); err != nil {
			os.RemoveAll(stagingDir)
			return fmt.Errorf("unpacking %s: %w", localPath, err)
		}
	}

	if _, err := statRemote(ctx, mux, host, installDir); err == nil {
		return nil
	}

	if err := mux.Upload(ctx, host, localPath, remoteArchivePath); err != nil {
		return fmt.Errorf("uploading %s to %s:%s: %w", localPath, host, remoteArchivePath, err)
	}
	unpackCmd := fmt.Sprintf("mkdir -p %s && tar -xzf %s -C %s --strip-components=1 && chmod -R u+rwX,go+rX %s",
		shQuote(installDir), shQuote(remoteArchivePath), shQuote(installDir), shQuote(installDir))
	if _, err := mux.Execute(ctx, host, unpackCmd); err != nil {
		return fmt.Errorf("unpacking %s into %s: %w", remoteArchivePath, installDir, err)
	}
	return nil
}

func downloadToFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d fetching %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	tempPath := destPath + ".tmp"
	out, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tempPath)
		return err
	}
	out.Close()
	return os.Rename(tempPath, destPath)
}

func statRemote(ctx context.Context, mux *transport.Multiplexer, host, path string) (string, error) {
	return mux.Execute(ctx, host, "test -e "+shQuote(path))
}

// shQuote delegates to transport.ShellQuote so every remote command
// built in this package escapes embedded quotes the same way.
func shQuote(s string) string {
	return transport.ShellQuote(s)
}

// VerifyLocalArchiveDigest checks that the file at path has the given
// BLAKE3 digest. EnsureArchiveInstalled calls it on the locally
// downloaded archive before unpacking or uploading it, for both the
// editor-binary and the bus-runtime installers.
func VerifyLocalArchiveDigest(path, wantHexDigest string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for digest verification: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != wantHexDigest {
		return fmt.Errorf("digest mismatch for %s: got %s, want %s", path, got, wantHexDigest)
	}
	return nil
}

// UnpackLocalGzipTar unpacks a local .tar.gz archive into destDir,
// stripping the first path component of every entry (matching the
// single top-level-directory layout of the editor-binary and
// bus-runtime archives). destDir must already exist.
func UnpackLocalGzipTar(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("opening gzip stream of %s: %w", archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry from %s: %w", archivePath, err)
		}

		name := stripFirstComponent(header.Name)
		if name == "" {
			continue
		}
		targetPath := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", targetPath, err)
			}
			out, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("creating %s: %w", targetPath, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("writing %s: %w", targetPath, err)
			}
			out.Close()
		}
	}
}

// writeTempFile stages content in a new temp file and returns its
// path, for callers that need a local file to hand to
// Multiplexer.Upload (which reads from a path, not a byte slice).
func writeTempFile(content string) (string, error) {
	file, err := os.CreateTemp("", "switcheroo-upload-*")
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

func removeTempFile(path string) {
	os.Remove(path)
}

func stripFirstComponent(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return ""
}
