package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"impexdeploy/internal/apperrors"
	"impexdeploy/internal/config"
	"impexdeploy/internal/testutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type harness struct {
	inst    *testutil.FakeInstance
	workDir string
	folder  string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	env     map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		inst:    testutil.NewFakeInstance(t),
		workDir: t.TempDir(),
		env:     map[string]string{"IMPEX_POLL_INTERVAL": "5ms"},
	}
	h.folder = filepath.Join(t.TempDir(), "site_import")
	prefs := filepath.Join(h.folder, "sites", "RefArch", "preferences.xml")
	if err := os.MkdirAll(filepath.Dir(prefs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(prefs, []byte("<preferences/>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return h
}

func (h *harness) writeDWJSON(t *testing.T, rel string, v map[string]string) {
	t.Helper()
	data, _ := json.Marshal(v)
	path := filepath.Join(h.workDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (h *harness) dwJSON() map[string]string {
	return map[string]string{
		"hostname":       h.inst.Host(),
		"username":       testutil.FakeUsername,
		"password":       testutil.FakePassword,
		"clientId":       testutil.FakeClientID,
		"clientPassword": testutil.FakeClientSecret,
		"folderToImport": h.folder,
	}
}

func (h *harness) run(args ...string) int {
	return Run(context.Background(), args, Options{
		Stdout:     &h.stdout,
		Stderr:     &h.stderr,
		Env:        config.NewEnv(config.MapLookup(h.env)),
		WorkDir:    h.workDir,
		HTTPClient: h.inst.Client(),
		TokenURL:   h.inst.TokenURL(),
	})
}

func TestRun_SuccessFromDWJSON(t *testing.T) {
	h := newHarness(t)
	h.inst.SetExecutions(testutil.RunningExecution(), testutil.FinishedExecution("OK", "/Sites/LOGS/import.log"))
	h.inst.SetLog("/Sites/LOGS/import.log", "============ Import Results (SUMMARY) ============\nSites: 1 imported\n[2024-03-01 10:00:00 GMT] done\n")
	h.writeDWJSON(t, "dw.json", h.dwJSON())

	code := h.run()

	out := h.stdout.String()
	if code != apperrors.ExitOK {
		t.Fatalf("exit code = %d, want 0\nstdout:\n%s\nstderr:\n%s", code, out, h.stderr.String())
	}
	for _, want := range []string{
		"Import finished successfully",
		"Sites: 1 imported",
		"/on/demandware.servlet/webdav/Sites/LOGS/import.log",
		"******",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, testutil.FakePassword) || strings.Contains(out, testutil.FakeClientSecret) {
		t.Errorf("stdout leaks a secret:\n%s", out)
	}
	if strings.Contains(out, "done") {
		t.Errorf("summary should stop before the next log entry:\n%s", out)
	}
}

func TestRun_CartridgesDWJSONWins(t *testing.T) {
	h := newHarness(t)
	h.inst.SetExecutions(testutil.FinishedExecution("OK", ""))
	bad := h.dwJSON()
	bad["hostname"] = "wrong.example.com"
	h.writeDWJSON(t, "dw.json", bad)
	h.writeDWJSON(t, filepath.Join("cartridges", "dw.json"), h.dwJSON())

	if code := h.run(); code != apperrors.ExitOK {
		t.Fatalf("exit code = %d, want 0\n%s", code, h.stdout.String())
	}
}

func TestRun_FlagsOverrideFile(t *testing.T) {
	h := newHarness(t)
	h.inst.SetExecutions(testutil.FinishedExecution("OK", ""))
	file := h.dwJSON()
	file["hostname"] = "wrong.example.com"
	file["password"] = "wrong"
	h.writeDWJSON(t, "dw.json", file)

	code := h.run("-H", h.inst.Host(), "-p", testutil.FakePassword)
	if code != apperrors.ExitOK {
		t.Fatalf("exit code = %d, want 0\n%s", code, h.stdout.String())
	}
}

func TestRun_FlagsOnlyWithYAMLConfig(t *testing.T) {
	h := newHarness(t)
	h.inst.SetExecutions(testutil.FinishedExecution("OK", ""))
	yamlPath := filepath.Join(t.TempDir(), "instance.yaml")
	content := "hostname: " + h.inst.Host() + "\nusername: " + testutil.FakeUsername + "\nclientId: " + testutil.FakeClientID + "\n"
	if err := os.WriteFile(yamlPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pwFile := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(pwFile, []byte(testutil.FakePassword+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	code := h.run("--config", yamlPath, "--password-file", pwFile,
		"-l", testutil.FakeClientSecret, "-f", h.folder)
	if code != apperrors.ExitOK {
		t.Fatalf("exit code = %d, want 0\n%s\n%s", code, h.stdout.String(), h.stderr.String())
	}
}

func TestRun_ConfigError(t *testing.T) {
	h := newHarness(t)

	code := h.run("-u", "admin", "-p", "secret", "-f", h.folder)

	if code != apperrors.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, apperrors.ExitConfig)
	}
	if !strings.Contains(h.stdout.String(), "hostname is required") {
		t.Errorf("stdout = %q", h.stdout.String())
	}
	if h.inst.UploadCalls.Load() != 0 {
		t.Error("nothing should be uploaded with an invalid config")
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	h := newHarness(t)
	if code := h.run("--no-such-flag"); code != apperrors.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, apperrors.ExitConfig)
	}
}

func TestRun_ImportFailure(t *testing.T) {
	h := newHarness(t)
	h.inst.SetExecutions(testutil.FinishedExecution("ERROR", "",
		testutil.Step{ID: "ImportSiteArchive", Status: "ERROR", Message: "Invalid XML"},
	))
	h.writeDWJSON(t, "dw.json", h.dwJSON())

	code := h.run()

	if code != apperrors.ExitImportFailed {
		t.Errorf("exit code = %d, want %d", code, apperrors.ExitImportFailed)
	}
	if !strings.Contains(h.stdout.String(), "ImportSiteArchive: ERROR - Invalid XML") {
		t.Errorf("stdout missing step detail:\n%s", h.stdout.String())
	}
}

func TestRun_LegacyExitCodes(t *testing.T) {
	h := newHarness(t)
	h.inst.UploadStatus = 405
	h.writeDWJSON(t, "dw.json", h.dwJSON())

	code := h.run("--legacy-exit-codes")

	if code != apperrors.ExitOK {
		t.Errorf("exit code = %d, want 0 with legacy exit codes", code)
	}
	if !strings.Contains(h.stdout.String(), "Remote server does not support WebDAV!") {
		t.Errorf("stdout = %q", h.stdout.String())
	}
}

func TestRun_TransportExitCode(t *testing.T) {
	h := newHarness(t)
	h.inst.UploadStatus = 405
	h.writeDWJSON(t, "dw.json", h.dwJSON())

	if code := h.run(); code != apperrors.ExitTransport {
		t.Errorf("exit code = %d, want %d", code, apperrors.ExitTransport)
	}
}

func TestRun_PlaceholderWarning(t *testing.T) {
	h := newHarness(t)
	v := h.dwJSON()
	delete(v, "clientId")
	delete(v, "clientPassword")
	h.writeDWJSON(t, "dw.json", v)

	code := h.run()

	if code != apperrors.ExitAuth {
		t.Errorf("exit code = %d, want %d", code, apperrors.ExitAuth)
	}
	if !strings.Contains(h.stdout.String(), "placeholder credentials") {
		t.Errorf("stdout = %q", h.stdout.String())
	}
}

func TestRun_MetricsAndLogFile(t *testing.T) {
	h := newHarness(t)
	h.inst.SetExecutions(testutil.FinishedExecution("OK", ""))
	h.writeDWJSON(t, "dw.json", h.dwJSON())
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "impex.prom")
	logPath := filepath.Join(dir, "impex.log")

	if code := h.run("--metrics-file", metricsPath, "--log-file", logPath); code != apperrors.ExitOK {
		t.Fatalf("exit code = %d\n%s", code, h.stdout.String())
	}

	metrics, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(metrics), `outcome="success"`) {
		t.Errorf("metrics file missing outcome:\n%s", metrics)
	}
	logs, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(logs), `"msg":"Deploy finished"`) {
		t.Errorf("log file missing JSON records:\n%s", logs)
	}
}

func TestRun_Help(t *testing.T) {
	h := newHarness(t)

	if code := h.run("--help"); code != apperrors.ExitOK {
		t.Errorf("exit code = %d, want 0", code)
	}
	for _, flag := range []string{"--hostname", "--client-password", "--do-not-zip", "--poll-timeout", "--legacy-exit-codes"} {
		if !strings.Contains(h.stdout.String(), flag) {
			t.Errorf("help missing %s", flag)
		}
	}
}

func TestRun_EnvDefaults(t *testing.T) {
	h := newHarness(t)
	h.env["IMPEX_LEGACY_EXIT_CODES"] = "true"

	if code := h.run("-u", "admin"); code != apperrors.ExitOK {
		t.Errorf("exit code = %d, want 0 from env legacy setting", code)
	}
}
