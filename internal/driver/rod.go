package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ashcrew/ctxpoold/internal/logging"
	"github.com/ashcrew/ctxpoold/internal/pool"
)

// RodOptions configures the Chromium process launched by RodDriver,
// forwarded verbatim from config.DriverConfig.
type RodOptions struct {
	Headless          bool
	UseVirtualDisplay bool
	DisplayWidth      int
	DisplayHeight     int
}

// rodContext is the concrete Handle stored for one pool Context: the
// page that anchors its isolated browser context plus the
// browser-context id CDP needs to create sibling pages in it.
type rodContext struct {
	browserContextID proto.BrowserBrowserContextID
	page             *rod.Page
	storagePath      string
}

// persistedState mirrors Playwright's storage_state() shape closely
// enough to round-trip cookies and localStorage across a restart;
// see original_source/pool/context_pool.py's state_file handling.
type persistedState struct {
	Cookies      []*proto.NetworkCookie `json:"cookies"`
	LocalStorage map[string]string      `json:"local_storage"`
}

// RodDriver implements pool.BrowserDriver against one shared
// Chromium process, assigning each pool context its own CDP browser
// context (proto.TargetCreateBrowserContext) for cookie/storage
// isolation. Grounded on dynamic.go's launchBrowser/closeBrowser and
// page_pool.go's release-time cleanup.
type RodDriver struct {
	opts    RodOptions
	browser *rod.Browser
}

// NewRodDriver returns an unlaunched driver; call Launch before use.
func NewRodDriver(opts RodOptions) *RodDriver {
	return &RodDriver{opts: opts}
}

func (d *RodDriver) Launch(ctx context.Context) error {
	l := launcher.New().Headless(d.opts.Headless).Set("ignore-certificate-errors")
	if d.opts.UseVirtualDisplay {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", d.opts.DisplayWidth, d.opts.DisplayHeight))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return &Error{Op: "launch", Cause: err}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return &Error{Op: "connect", Cause: err}
	}
	d.browser = browser
	logging.Infof("browser launched: %s", controlURL)
	return nil
}

func (d *RodDriver) Shutdown(ctx context.Context) error {
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	if err != nil {
		return &Error{Op: "shutdown", Cause: err}
	}
	return nil
}

func (d *RodDriver) NewContext(ctx context.Context, proxy string, storagePath string, tags []string) (pool.DriverHandle, error) {
	if d.browser == nil {
		return nil, &TargetClosedError{Cause: fmt.Errorf("browser not launched")}
	}

	created, err := proto.TargetCreateBrowserContext{ProxyServer: proxy}.Call(d.browser)
	if err != nil {
		return nil, &Error{Op: "create_browser_context", Cause: err}
	}

	page, err := d.browser.Page(proto.TargetCreateTarget{
		URL:              "about:blank",
		BrowserContextID: created.BrowserContextID,
	})
	if err != nil {
		return nil, &Error{Op: "create_page", Cause: err}
	}

	rc := &rodContext{browserContextID: created.BrowserContextID, page: page, storagePath: storagePath}

	if storagePath != "" {
		if err := restoreState(page, storagePath); err != nil {
			logging.Warnf("restoring state for %s: %v", storagePath, err)
		}
	}

	return rc, nil
}

func (d *RodDriver) CloseContext(ctx context.Context, h pool.DriverHandle) error {
	rc, ok := h.(*rodContext)
	if !ok || rc == nil {
		return nil
	}
	if rc.storagePath != "" {
		if err := saveState(rc.page, rc.storagePath); err != nil {
			logging.Warnf("saving state for %s: %v", rc.storagePath, err)
		}
	}
	if err := rc.page.Close(); err != nil {
		logging.Debugf("closing page: %v", err)
	}
	err := proto.TargetDisposeBrowserContext{BrowserContextID: rc.browserContextID}.Call(d.browser)
	if err != nil {
		return &Error{Op: "dispose_browser_context", Cause: err}
	}
	return nil
}

// CDPTargetURL returns the URL that Target.getTargetInfo reports for
// the primary page: the page's current document URL, not a devtools
// websocket address.
func (d *RodDriver) CDPTargetURL(h pool.DriverHandle) string {
	rc, ok := h.(*rodContext)
	if !ok || rc == nil || rc.page == nil {
		return ""
	}
	info, err := proto.TargetGetTargetInfo{TargetID: rc.page.TargetID}.Call(d.browser)
	if err != nil {
		return ""
	}
	return info.TargetInfo.URL
}

func (d *RodDriver) Execute(ctx context.Context, h pool.DriverHandle, req pool.ScrapeRequest, timeout time.Duration) (pool.ScrapeResult, error) {
	rc, ok := h.(*rodContext)
	if !ok || rc == nil {
		return pool.ScrapeResult{}, &TargetClosedError{Cause: fmt.Errorf("nil handle")}
	}

	page := rc.page.Context(ctx).Timeout(timeout)
	result := pool.ScrapeResult{URL: req.URL}

	if req.BlockResources {
		router := page.HijackRequests()
		router.MustAdd("*", func(hj *rod.Hijack) {
			switch hj.Request.Type() {
			case proto.NetworkResourceTypeImage, proto.NetworkResourceTypeFont, proto.NetworkResourceTypeStylesheet:
				hj.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			default:
				hj.ContinueRequest(&proto.FetchContinueRequest{})
			}
		})
		go router.Run()
		defer router.MustStop()
	}

	var navStatus int
	wait := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Response.URL == req.URL || navStatus == 0 {
			navStatus = e.Response.Status
		}
		return navStatus != 0
	})

	if err := page.Navigate(req.URL); err != nil {
		return result, d.classifyErr(rc, "navigate", err)
	}

	switch req.WaitFor {
	case pool.WaitDOMContentLoaded:
		if err := page.WaitDOMStable(200*time.Millisecond, 0); err != nil {
			return result, d.classifyErr(rc, "wait_dom_stable", err)
		}
	case pool.WaitNetworkIdle:
		if err := page.WaitIdle(timeout); err != nil {
			return result, d.classifyErr(rc, "wait_idle", err)
		}
	default:
		if err := page.WaitLoad(); err != nil {
			return result, d.classifyErr(rc, "wait_load", err)
		}
	}
	wait()

	result.Status = navStatus

	if req.Script != "" {
		val, err := page.Eval(req.Script)
		if err != nil {
			return result, d.classifyErr(rc, "eval_script", err)
		}
		result.ScriptResult = val.Value.Val()
	}

	if req.GetContent {
		content, err := page.HTML()
		if err != nil {
			return result, d.classifyErr(rc, "get_content", err)
		}
		result.Content = content
		result.HasContent = true
	}

	if req.Screenshot {
		img, err := page.Screenshot(true, nil)
		if err != nil {
			return result, d.classifyErr(rc, "screenshot", err)
		}
		result.Screenshot = base64.StdEncoding.EncodeToString(img)
	}

	result.Success = true
	return result, nil
}

// classifyErr distinguishes a target/process-level failure (the
// underlying tab or browser connection is gone) from an ordinary
// navigation error. A cheap follow-up CDP call confirms the target is
// actually gone rather than guessing from the error string, since rod
// does not export a stable sentinel for "target closed" across
// versions.
func (d *RodDriver) classifyErr(rc *rodContext, op string, err error) error {
	if err == nil {
		return nil
	}
	if d.browser == nil || rc == nil {
		return &TargetClosedError{Cause: err}
	}
	if _, infoErr := (proto.TargetGetTargetInfo{TargetID: rc.page.TargetID}).Call(d.browser); infoErr != nil {
		return &TargetClosedError{Cause: err}
	}
	return &Error{Op: op, Cause: err}
}

func saveState(page *rod.Page, storagePath string) error {
	cookies, err := proto.NetworkGetCookies{}.Call(page)
	if err != nil {
		return err
	}
	localStorageRaw, err := page.Eval(`() => JSON.stringify(localStorage)`)
	local := map[string]string{}
	if err == nil {
		_ = json.Unmarshal([]byte(localStorageRaw.Value.Str()), &local)
	}
	state := persistedState{Cookies: cookies.Cookies, LocalStorage: local}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(storagePath, "state.json"), data, 0644)
}

func restoreState(page *rod.Page, storagePath string) error {
	data, err := os.ReadFile(filepath.Join(storagePath, "state.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Cookies) > 0 {
		params := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
		for _, c := range state.Cookies {
			params = append(params, &proto.NetworkCookieParam{
				Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			})
		}
		if err := (proto.NetworkSetCookies{Cookies: params}).Call(page); err != nil {
			return err
		}
	}
	if len(state.LocalStorage) > 0 {
		encoded, _ := json.Marshal(state.LocalStorage)
		script := fmt.Sprintf(`(data) => { const obj = JSON.parse(data); for (const k in obj) localStorage.setItem(k, obj[k]); }`)
		if _, err := page.Eval(script, json.RawMessage(encoded)); err != nil {
			return err
		}
	}
	return nil
}
