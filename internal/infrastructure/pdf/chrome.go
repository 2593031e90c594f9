package pdf

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/invoice"
)

// A4 (inch)
const (
	paperWidth  = 8.27
	paperHeight = 11.7
	margin      = 0.6
)

// ChromeConverter はヘッドレス Chrome で HTML を PDF に変換する
type ChromeConverter struct {
	timeout time.Duration
	opts    []chromedp.ExecAllocatorOption
}

// NewChromeConverter は新しい ChromeConverter を作成する
// execPath が空の場合は chromedp が PATH から Chrome を探す
func NewChromeConverter(timeout time.Duration, execPath string) *ChromeConverter {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.DisableGPU, chromedp.NoSandbox)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeConverter{timeout: timeout, opts: opts}
}

// ToPDF は HTML を読み込んだページを A4 で印刷する
func (c *ChromeConverter) ToPDF(ctx context.Context, html []byte) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancel := context.WithTimeout(browserCtx, c.timeout)
	defer cancel()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paperWidth).
				WithPaperHeight(paperHeight).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				WithPreferCSSPageSize(true).
				WithDisplayHeaderFooter(false).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("Chromeでの印刷に失敗: %w", err)
	}
	return buf, nil
}

var _ invoice.Converter = (*ChromeConverter)(nil)
