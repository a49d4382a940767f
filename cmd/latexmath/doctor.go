package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Latex    toolInfo   `json:"latex"`
	Dvisvgm  toolInfo   `json:"dvisvgm"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// toolInfo holds detection results for one external executable.
type toolInfo struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// systemInfo holds system check results.
type systemInfo struct {
	TempWritable bool `json:"temp_writable"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Toolchain paths resolve the same way a render would: config file values
// first, explicit flags on top, built-in defaults last.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(flags *cliFlags, env *Environment) int {
	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}
	mergeFlags(cfg, flags)

	result := runDoctor(cfg.Toolchain.LatexPath, cfg.Toolchain.DvisvgmPath)

	if flags.doctorJSON {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(latexPath, dvisvgmPath string) *doctorResult {
	result := &doctorResult{
		Status: "ready",
		Env: envInfo{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
	}

	result.Latex = checkTool(result, latexPath,
		"LaTeX not found. Install TeX Live or set --latex-path")
	result.Dvisvgm = checkTool(result, dvisvgmPath,
		"dvisvgm not found. Install dvisvgm or set --dvisvgm-path")
	checkSystem(result)

	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}

	return result
}

// checkTool locates one executable and asks it for its version.
func checkTool(result *doctorResult, tool, missingMsg string) toolInfo {
	info := toolInfo{}

	path, err := exec.LookPath(tool)
	if err != nil {
		result.Errors = append(result.Errors, missingMsg)
		return info
	}
	info.Found = true
	info.Path = path

	out, err := exec.Command(path, "--version").Output() // #nosec G204 -- tool path is operator-provided
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Could not get %s version: %v", tool, err))
		return info
	}
	// First line only; latex banners run for pages.
	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	info.Version = version
	return info
}

// checkSystem verifies system requirements.
func checkSystem(result *doctorResult) {
	tmpDir := os.TempDir()
	testFile := filepath.Join(tmpDir, "latexmath-doctor-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Temp directory not writable: %s", tmpDir))
	} else {
		_ = os.Remove(testFile)
		result.System.TempWritable = true
	}
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "latexmath doctor")
	fmt.Fprintln(w)

	printTool(w, "LaTeX", r.Latex)
	printTool(w, "dvisvgm", r.Dvisvgm)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "System")
	if r.System.TempWritable {
		fmt.Fprintln(w, "  [OK] Temp directory: writable")
	} else {
		fmt.Fprintln(w, "  [ERROR] Temp directory: not writable")
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case "ready":
		fmt.Fprintln(w, "Status: Ready to render")
	case "warnings":
		fmt.Fprintln(w, "Status: Ready with warnings")
	case "errors":
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}

func printTool(w io.Writer, name string, info toolInfo) {
	fmt.Fprintln(w, name)
	if info.Found {
		fmt.Fprintf(w, "  [OK] Found at %s\n", info.Path)
		if info.Version != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", info.Version)
		}
	} else {
		fmt.Fprintln(w, "  [ERROR] Not found")
	}
	fmt.Fprintln(w)
}
