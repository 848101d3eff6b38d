package payslip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"payslip/internal/domain/payroll"
	"payslip/internal/platform/metrics"
)

var (
	tracer   = otel.Tracer("payslip/internal/domain/payslip")
	hundred  = decimal.NewFromInt(100)
	unsafeFn = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Encrypter seals files at rest. A nil or unconfigured Encrypter writes plain files.
type Encrypter interface {
	Configured() bool
	Encrypt(plain []byte) ([]byte, error)
}

type Options struct {
	OutputDir string
	Template  *Template
	PDF       bool
	Workers   int
	Timeout   time.Duration
	Table     payroll.BracketTable
}

type Renderer struct {
	opts    Options
	crypto  Encrypter
	metrics *metrics.Collector
}

// Result is the outcome for one record. Err is a *RenderError when set.
type Result struct {
	Line         int    `json:"line"`
	Name         string `json:"name"`
	DocumentPath string `json:"documentPath,omitempty"`
	PDFPath      string `json:"pdfPath,omitempty"`
	Err          error  `json:"-"`
}

func NewRenderer(opts Options, crypto Encrypter, collector *metrics.Collector) *Renderer {
	return &Renderer{opts: opts, crypto: crypto, metrics: collector}
}

// RenderAll renders every record on a bounded pool. A failure is logged and
// recorded in its Result without stopping the other records. Results keep the
// order of records.
func (r *Renderer) RenderAll(ctx context.Context, records []payroll.Record) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "payslip.RenderAll")
	defer span.End()
	span.SetAttributes(attribute.Int("payslip.records", len(records)))

	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	names := FileNames(records)
	results := make([]Result, len(records))

	g := new(errgroup.Group)
	g.SetLimit(r.workers())
	for i := range records {
		g.Go(func() error {
			results[i] = r.render(ctx, records[i], names[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("payslip.failed", failed))
	slog.Info("payslips rendered", "count", len(records)-failed, "failed", failed, "dir", r.opts.OutputDir)
	return results, nil
}

// Render produces the documents for a single record.
func (r *Renderer) Render(ctx context.Context, rec payroll.Record) Result {
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return Result{Line: rec.Line, Name: rec.Input.Name, Err: &RenderError{Line: rec.Line, Name: rec.Input.Name, Err: err}}
	}
	return r.render(ctx, rec, FileName(rec))
}

func (r *Renderer) render(ctx context.Context, rec payroll.Record, base string) Result {
	start := time.Now()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	done := make(chan Result, 1)
	go func() {
		done <- r.write(ctx, rec, base)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{Line: rec.Line, Name: rec.Input.Name, Err: ctx.Err()}
		go func() {
			removeOutputs(<-done)
		}()
	}
	if res.Err != nil {
		removeOutputs(res)
		res.DocumentPath, res.PDFPath = "", ""
	}

	outcome := "ok"
	if res.Err != nil {
		outcome = "failed"
		if errors.Is(res.Err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		res.Err = &RenderError{Line: rec.Line, Name: rec.Input.Name, Err: res.Err}
		slog.Warn("payslip render failed", "line", rec.Line, "name", rec.Input.Name, "err", res.Err)
	}
	r.metrics.Render(outcome, time.Since(start))
	return res
}

func (r *Renderer) write(ctx context.Context, rec payroll.Record, base string) Result {
	res := Result{Line: rec.Line, Name: rec.Input.Name}
	if r.opts.Template != nil {
		body, err := r.opts.Template.Fill(rec.Fields())
		if err != nil {
			res.Err = err
			return res
		}
		path, err := r.save(ctx, base+r.opts.Template.Ext, []byte(body))
		if err != nil {
			res.Err = err
			return res
		}
		res.DocumentPath = path
	}
	if r.opts.PDF {
		lines, err := payroll.TaxBreakdown(r.opts.Table, rec.Derived.TaxableIncome)
		if err != nil {
			res.Err = err
			return res
		}
		var buf bytes.Buffer
		if err := WritePDF(&buf, rec, lines); err != nil {
			res.Err = fmt.Errorf("pdf: %w", err)
			return res
		}
		path, err := r.save(ctx, base+".pdf", buf.Bytes())
		if err != nil {
			res.Err = err
			return res
		}
		res.PDFPath = path
	}
	return res
}

// save writes one document unless ctx has ended, so a render that outlives
// its deadline leaves nothing behind.
func (r *Renderer) save(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(r.opts.OutputDir, name)
	perm := os.FileMode(0o644)
	if r.crypto != nil && r.crypto.Configured() {
		sealed, err := r.crypto.Encrypt(data)
		if err != nil {
			return "", fmt.Errorf("encrypt %s: %w", name, err)
		}
		data, path, perm = sealed, path+".enc", 0o600
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return "", err
	}
	return path, nil
}

// removeOutputs deletes the files of a render that did not succeed.
func removeOutputs(res Result) {
	for _, path := range []string{res.DocumentPath, res.PDFPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("remove partial payslip failed", "path", path, "err", err)
		}
	}
}

func (r *Renderer) workers() int {
	if r.opts.Workers > 0 {
		return r.opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// FileName is payslip_<Name>_<Month>_<Year> with path-unsafe characters
// replaced.
func FileName(rec payroll.Record) string {
	parts := "payslip_" + rec.Input.Name + "_" + rec.Input.Month
	if rec.Input.Year != 0 {
		parts += "_" + strconv.Itoa(rec.Input.Year)
	} else {
		parts += "_"
	}
	return unsafeFn.ReplaceAllString(parts, "_")
}

// FileNames names each record's documents, suffixing the line number when two
// records would otherwise share a name.
func FileNames(records []payroll.Record) []string {
	counts := map[string]int{}
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = FileName(rec)
		counts[names[i]]++
	}
	for i, rec := range records {
		if counts[names[i]] > 1 {
			names[i] += "_line" + strconv.Itoa(rec.Line)
		}
	}
	return names
}
