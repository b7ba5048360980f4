package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/config"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage Python packages for the bridged interpreter",
	Long: `Install and manage Python packages importable from Python runs.

Packages are downloaded directly from PyPI (no pip required) into the
packages directory, which the interpreter mounts read-only at /packages.
Only pure Python wheels are supported - packages with C extensions won't work.

The directory is runtime.packages, or --packages, or the default
$XDG_CACHE_HOME/scratchpad/packages.`,
}

var depsInstallCmd = &cobra.Command{
	Use:   "install [packages...]",
	Short: "Install packages from PyPI",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDepsInstall,
}

var depsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Args:  cobra.NoArgs,
	RunE:  runDepsList,
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove [packages...]",
	Short: "Remove packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDepsRemove,
}

// pypiBaseURL is replaced in tests.
var pypiBaseURL = "https://pypi.org/pypi"

func init() {
	depsCmd.AddCommand(depsInstallCmd, depsListCmd, depsRemoveCmd)
	rootCmd.AddCommand(depsCmd)
}

// packagesDir resolves the install directory for cmd.
func packagesDir(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Runtime.Packages != "" {
		return cfg.Runtime.Packages, nil
	}
	return config.PackageDir(), nil
}

type pypiURL struct {
	PackageType string `json:"packagetype"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
}

type pypiResponse struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	Urls []pypiURL `json:"urls"`
}

// Packages that won't work in WASM (require C extensions, sockets, etc.)
var blockedPackages = map[string]string{
	// C extensions
	"numpy":         "requires C extensions",
	"pandas":        "requires C extensions (numpy)",
	"scipy":         "requires C extensions",
	"tensorflow":    "requires C extensions",
	"torch":         "requires C extensions",
	"scikit-learn":  "requires C extensions",
	"matplotlib":    "requires C extensions",
	"pillow":        "requires C extensions",
	"opencv-python": "requires C extensions",
	"cryptography":  "requires C extensions",
	"lxml":          "requires C extensions",
	// The interpreter has no network.
	"requests": "uses sockets (runs have no network access)",
	"httpx":    "uses sockets (runs have no network access)",
	"urllib3":  "uses sockets (runs have no network access)",
	"aiohttp":  "uses sockets (runs have no network access)",
	"flask":    "requires sockets (web framework not supported)",
	"django":   "requires sockets (web framework not supported)",
	"fastapi":  "requires sockets (web framework not supported)",
}

func runDepsInstall(cmd *cobra.Command, args []string) error {
	dir, err := packagesDir(cmd)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create package dir: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, pkg := range args {
		name := parsePackageSpec(pkg)
		if reason, blocked := blockedPackages[strings.ToLower(name)]; blocked {
			return fmt.Errorf("%s is not supported in WASM (%s)", name, reason)
		}

		fmt.Fprintf(out, "Installing %s...\n", name)
		if err := installPackage(cmd.Context(), http.DefaultClient, out, name, dir); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	fmt.Fprintln(out, "Done.")
	return nil
}

// parsePackageSpec strips a version constraint such as ">=2.32". The latest
// release is always installed.
func parsePackageSpec(spec string) string {
	for _, op := range []string{">=", "<=", "==", "~=", "!="} {
		if idx := strings.Index(spec, op); idx != -1 {
			return spec[:idx]
		}
	}
	return spec
}

func installPackage(ctx context.Context, client *http.Client, out io.Writer, name, destDir string) error {
	var pypi pypiResponse
	if err := getJSON(ctx, client, fmt.Sprintf("%s/%s/json", pypiBaseURL, name), &pypi); err != nil {
		return err
	}

	wheelURL := findWheel(pypi.Urls)
	if wheelURL == "" {
		return fmt.Errorf("no compatible wheel found (pure Python wheel required)")
	}

	fmt.Fprintf(out, "  Downloading %s-%s...\n", pypi.Info.Name, pypi.Info.Version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wheelURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download wheel: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download wheel: %s", resp.Status)
	}

	tmpFile, err := os.CreateTemp("", "scratchpad-*.whl")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		return fmt.Errorf("download wheel: %w", err)
	}
	tmpFile.Close()

	fmt.Fprintf(out, "  Extracting...\n")
	if err := extractWheel(tmpPath, destDir); err != nil {
		return fmt.Errorf("extract wheel: %w", err)
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch package info: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("package not found on PyPI")
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("PyPI returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parse PyPI response: %w", err)
	}
	return nil
}

func findWheel(urls []pypiURL) string {
	for _, u := range urls {
		if u.PackageType != "bdist_wheel" {
			continue
		}
		filename := strings.ToLower(u.Filename)
		if strings.Contains(filename, "-py3-none-any") || strings.Contains(filename, "-py2.py3-none-any") {
			return u.URL
		}
	}
	return ""
}

func extractWheel(wheelPath, destDir string) error {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".so") || strings.HasSuffix(name, ".pyd") || strings.HasSuffix(name, ".dylib") {
			return fmt.Errorf("package contains C extensions (%s) which won't work in WASM", filepath.Base(f.Name))
		}
	}

	root, err := os.OpenRoot(destDir)
	if err != nil {
		return err
	}
	defer root.Close()

	for _, f := range r.File {
		if strings.Contains(f.Name, ".dist-info/") {
			continue
		}
		if err := extractFile(root, f); err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes one archive entry below root. Entries escaping root
// fail.
func extractFile(root *os.Root, f *zip.File) error {
	name := filepath.FromSlash(f.Name)
	if f.FileInfo().IsDir() {
		return root.MkdirAll(name, 0o755)
	}
	if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}

	out, err := root.Create(name)
	if err != nil {
		return err
	}
	defer out.Close()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(out, rc)
	return err
}

func runDepsList(cmd *cobra.Command, args []string) error {
	dir, err := packagesDir(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasSuffix(entry.Name(), ".dist-info") && !strings.HasPrefix(entry.Name(), "__") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No packages installed.")
		return nil
	}

	fmt.Fprintf(out, "Packages in %s:\n", dir)
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func runDepsRemove(cmd *cobra.Command, args []string) error {
	dir, err := packagesDir(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	for _, pkg := range args {
		if strings.ContainsAny(pkg, `/\`) || pkg == ".." || pkg == "." {
			return fmt.Errorf("invalid package name %q", pkg)
		}
		if err := os.RemoveAll(filepath.Join(dir, pkg)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to remove %s: %v\n", pkg, err)
			continue
		}
		fmt.Fprintf(out, "Removed %s\n", pkg)
	}
	return nil
}
