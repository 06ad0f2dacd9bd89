package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	defaultServerURL   = "http://127.0.0.1:8080"
	defaultFileSize    = 64 * 1024
	defaultParallel    = 8
	defaultRetryMax    = 3
	defaultHTTPTimeout = time.Minute
	defaultPassword    = "smoke-test-password"

	separatorLineLength = 80
)

type config struct {
	serverURL   string
	fileSize    int
	parallel    int
	retryMax    int
	httpTimeout time.Duration
	showSummary bool
}

// Operation metrics.
type operationMetrics struct {
	Name     string
	Duration time.Duration
	Size     int64
	Error    error
}

type stepMetrics struct {
	Name       string
	Duration   time.Duration
	Operations []operationMetrics
	Success    bool
	Error      error
}

// metricsCollector records every request made during the run.
type metricsCollector struct {
	mu          sync.Mutex
	steps       []stepMetrics
	currentStep *stepMetrics
	startedAt   time.Time
	totalBytes  int64
}

func (m *metricsCollector) startStep(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentStep = &stepMetrics{Name: name}
	m.startedAt = time.Now()
}

func (m *metricsCollector) endStep(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentStep == nil {
		return
	}
	m.currentStep.Duration = time.Since(m.startedAt)
	m.currentStep.Success = err == nil
	m.currentStep.Error = err
	m.steps = append(m.steps, *m.currentStep)
	m.currentStep = nil
}

func (m *metricsCollector) record(name string, started time.Time, size int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.totalBytes += size
	}
	if m.currentStep == nil {
		return
	}
	m.currentStep.Operations = append(m.currentStep.Operations, operationMetrics{
		Name:     name,
		Duration: time.Since(started),
		Size:     size,
		Error:    err,
	})
}

func (m *metricsCollector) printSummary() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Println(strings.Repeat("=", separatorLineLength))
	fmt.Println("Summary")
	fmt.Println(strings.Repeat("=", separatorLineLength))
	for _, step := range m.steps {
		status := "OK"
		if !step.Success {
			status = "FAILED: " + step.Error.Error()
		}

		var slowest time.Duration
		for _, op := range step.Operations {
			slowest = max(slowest, op.Duration)
		}
		fmt.Printf("%-28s %4d ops  %10s  slowest %10s  %s\n",
			step.Name, len(step.Operations), step.Duration.Round(time.Millisecond), slowest.Round(time.Millisecond), status)
	}
	fmt.Println(strings.Repeat("-", separatorLineLength))
	fmt.Printf("Transferred %s\n", humanize.IBytes(uint64(m.totalBytes))) // #nosec G115 - never negative
}

type tester struct {
	cfg     config
	client  *vaultClient
	metrics *metricsCollector
}

type uploadedFile struct {
	ID   int64
	Name string
	Data []byte
}

func main() {
	cfg := parseFlags()
	t := &tester{
		cfg:     cfg,
		client:  newVaultClient(cfg.serverURL, cfg.httpTimeout, cfg.retryMax),
		metrics: &metricsCollector{},
	}

	err := t.run(context.Background())
	if cfg.showSummary {
		t.metrics.printSummary()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "smoke test failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("smoke test passed")
}

func parseFlags() config {
	server := flag.String("server", defaultServerURL, "Coffre-fort server base URL")
	size := flag.Int("size", defaultFileSize, "Test file size in bytes (at most 2 MiB)")
	parallel := flag.Int("parallel", defaultParallel, "Number of concurrent uploads in the parallel step")
	retryMax := flag.Int("retry-max", defaultRetryMax, "Retries for connection failures")
	timeout := flag.Duration("http-timeout", defaultHTTPTimeout, "HTTP client timeout")
	noSummary := flag.Bool("no-summary", false, "Disable the summary")
	flag.Parse()

	cfg := config{
		serverURL:   *server,
		fileSize:    *size,
		parallel:    *parallel,
		retryMax:    *retryMax,
		httpTimeout: *timeout,
		showSummary: !*noSummary,
	}
	if cfg.fileSize < 16 || cfg.fileSize > 2<<20 {
		fmt.Fprintln(os.Stderr, "size must be between 16 bytes and 2 MiB")
		os.Exit(2)
	}
	if cfg.parallel < 1 {
		cfg.parallel = 1
	}
	return cfg
}

func (t *tester) step(name string, fn func() error) error {
	fmt.Printf("==> %s\n", name)
	t.metrics.startStep(name)
	err := fn()
	t.metrics.endStep(err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (t *tester) run(ctx context.Context) error {
	email := fmt.Sprintf("smoke-%s@example.com", uuid.NewString()[:8])

	if err := t.step("Register and login", func() error {
		started := time.Now()
		err := t.client.register(ctx, email, defaultPassword)
		t.metrics.record("register", started, 0, err)
		if err != nil {
			return err
		}

		started = time.Now()
		err = t.client.login(ctx, email, defaultPassword)
		t.metrics.record("login", started, 0, err)
		return err
	}); err != nil {
		return err
	}

	var first *uploadedFile
	if err := t.step("Upload, info, download", func() error {
		var err error
		first, err = t.uploadAndVerify(ctx, "smoke.pdf")
		return err
	}); err != nil {
		return err
	}

	if err := t.step("Share and public download", func() error {
		return t.shareAndVerify(ctx, first)
	}); err != nil {
		return err
	}

	if err := t.step("Activity feed", func() error {
		started := time.Now()
		feed, err := t.client.activity(ctx)
		t.metrics.record("activity", started, 0, err)
		if err != nil {
			return err
		}
		if feed.Count < 2 {
			return fmt.Errorf("expected at least 2 events, got %d", feed.Count)
		}
		return nil
	}); err != nil {
		return err
	}

	uploaded := []*uploadedFile{first}
	if err := t.step("Parallel uploads", func() error {
		files, err := t.parallelUploads(ctx)
		uploaded = append(uploaded, files...)
		return err
	}); err != nil {
		return err
	}

	return t.step("Delete and verify", func() error {
		for _, file := range uploaded {
			if err := t.deleteAndVerify(ctx, file); err != nil {
				return err
			}
		}
		return nil
	})
}

// generatePDF returns size random bytes behind a PDF header.
func generatePDF(size int) ([]byte, error) {
	header := []byte("%PDF-1.4\n")
	data := make([]byte, size)
	copy(data, header)
	if _, err := rand.Read(data[len(header):]); err != nil {
		return nil, err
	}
	return data, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (t *tester) uploadAndVerify(ctx context.Context, name string) (*uploadedFile, error) {
	data, err := generatePDF(t.cfg.fileSize)
	if err != nil {
		return nil, fmt.Errorf("generate data: %w", err)
	}

	started := time.Now()
	result, err := t.client.upload(ctx, name, "application/pdf", data)
	t.metrics.record("upload", started, int64(len(data)), err)
	if err != nil {
		return nil, err
	}

	started = time.Now()
	info, err := t.client.info(ctx, result.ID)
	t.metrics.record("info", started, 0, err)
	if err != nil {
		return nil, err
	}
	if info.OriginalName != name || info.Mime != "application/pdf" || info.Size != int64(len(data)) {
		return nil, fmt.Errorf("metadata mismatch for file %d: %+v", result.ID, info)
	}

	started = time.Now()
	downloaded, err := t.client.download(ctx, result.ID)
	t.metrics.record("download", started, int64(len(downloaded)), err)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(data, downloaded) {
		return nil, fmt.Errorf("download of file %d differs: sha256 %s, want %s", result.ID, checksum(downloaded), checksum(data))
	}

	return &uploadedFile{ID: result.ID, Name: name, Data: data}, nil
}

func (t *tester) shareAndVerify(ctx context.Context, file *uploadedFile) error {
	started := time.Now()
	share, err := t.client.share(ctx, file.ID)
	t.metrics.record("share", started, 0, err)
	if err != nil {
		return err
	}

	started = time.Now()
	downloaded, err := t.client.downloadShare(ctx, share.DownloadURL)
	t.metrics.record("share download", started, int64(len(downloaded)), err)
	if err != nil {
		return err
	}
	if !bytes.Equal(file.Data, downloaded) {
		return fmt.Errorf("shared download differs from upload")
	}
	return nil
}

func (t *tester) parallelUploads(ctx context.Context) ([]*uploadedFile, error) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		files []*uploadedFile
		errs  []error
	)

	for i := range t.cfg.parallel {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			file, err := t.uploadAndVerify(ctx, fmt.Sprintf("parallel-%d.pdf", index))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			files = append(files, file)
		}(i)
	}
	wg.Wait()

	return files, errors.Join(errs...)
}

func (t *tester) deleteAndVerify(ctx context.Context, file *uploadedFile) error {
	started := time.Now()
	err := t.client.delete(ctx, file.ID)
	t.metrics.record("delete", started, 0, err)
	if err != nil {
		return err
	}

	started = time.Now()
	_, err = t.client.info(ctx, file.ID)
	t.metrics.record("info after delete", started, 0, nil)

	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		return fmt.Errorf("file %d still visible after delete: %v", file.ID, err)
	}
	return nil
}
