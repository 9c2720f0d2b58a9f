package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const styleCSS = "body{font-family:Georgia,serif;color:#1c1917;max-width:900px;margin:0 auto;padding:1rem;} " +
	"h1{border-bottom:2px solid #92400e;padding-bottom:0.3rem;} " +
	"h2[data-section='arbitration']{break-before:page;page-break-before:always;} " +
	"table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.85rem;margin-bottom:1rem;} " +
	"th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;} " +
	"thead th{background:#f1f5f9;font-weight:700;} " +
	"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
	"@media print{ @page{size:auto;margin:12mm;} body{padding:0;} }"

// HTML converts debrief markdown into a standalone page.
func HTML(markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Negotiation Debrief</title>" +
		"<style>" + styleCSS + "</style></head><body>" +
		applyPrintLayoutHooks(content.String()) +
		"</body></html>", nil
}

var reArbitrationHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Arbitration\s*</h2>`)

func applyPrintLayoutHooks(contentHTML string) string {
	return reArbitrationHeading.ReplaceAllString(contentHTML, `<h2$1 data-section="arbitration">Arbitration</h2>`)
}

type ChromiumPDFRenderer struct {
	chromePath string
	timeout    time.Duration
}

func NewChromiumPDFRenderer() *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{chromePath: detectChromePath(), timeout: 30 * time.Second}
}

// Render prints the debrief markdown to an A4 PDF in headless Chromium.
func (r *ChromiumPDFRenderer) Render(ctx context.Context, markdown string) ([]byte, error) {
	htmlDoc, err := HTML(markdown)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

func detectChromePath() string {
	if p := strings.TrimSpace(os.Getenv("NEGOTIATION_CHROME_PATH")); p != "" {
		return p
	}
	for _, p := range []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
