package browser

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"vrpilot/internal/dom"
	"vrpilot/internal/sessioncache"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

const findInterval = 100 * time.Millisecond

// Page adapts a rod page to dom.Page.
type Page struct {
	page       *rod.Page
	id         string
	mgr        *Manager
	navTimeout time.Duration
}

var _ dom.Page = (*Page)(nil)

// ID returns the id the manager tracks the page under.
func (p *Page) ID() string { return p.id }

// Rod exposes the underlying page.
func (p *Page) Rod() *rod.Page { return p.page }

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx).Timeout(p.navTimeout)
	defer pg.CancelTimeout()
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

func (p *Page) Find(ctx context.Context, q dom.Query) (dom.Element, error) {
	for {
		if els, err := p.FindAll(ctx, q); err == nil && len(els) > 0 {
			return els[0], nil
		}
		select {
		case <-ctx.Done():
			return nil, dom.ErrNoMatch
		case <-time.After(findInterval):
		}
	}
}

func (p *Page) FindAll(ctx context.Context, q dom.Query) ([]dom.Element, error) {
	pg := p.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if q.XPath {
		els, err = pg.ElementsX(q.Expr)
	} else {
		els, err = pg.Elements(q.Expr)
	}
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		if !q.AllowHidden {
			if visible, err := el.Visible(); err != nil || !visible {
				continue
			}
		}
		out = append(out, &element{el: el, navTimeout: p.navTimeout})
	}
	return out, nil
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	return p.page.Context(ctx).InsertText(text)
}

var keys = map[dom.Key]input.Key{
	dom.KeyEscape: input.Escape,
	dom.KeyEnter:  input.Enter,
	dom.KeyTab:    input.Tab,
}

func (p *Page) Press(ctx context.Context, key dom.Key) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.page.Context(ctx).Keyboard.Press(k)
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(true, nil)
}

// Cookies returns the cookies visible to the page.
func (p *Page) Cookies(ctx context.Context) ([]sessioncache.Cookie, error) {
	res, err := proto.NetworkGetCookies{}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	out := make([]sessioncache.Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		expires := float64(c.Expires)
		if c.Session {
			expires = 0
		}
		out = append(out, sessioncache.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

// SetCookies installs cookies into the page's browser context.
func (p *Page) SetCookies(ctx context.Context, cookies []sessioncache.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if len(params) == 0 {
		return nil
	}
	return p.page.Context(ctx).SetCookies(params)
}

// LocalStorage returns the page origin's localStorage as a JSON object.
func (p *Page) LocalStorage(ctx context.Context) string {
	return snapshotStorage(p.page.Context(ctx), "localStorage")
}

// RestoreLocalStorage writes a JSON object produced by LocalStorage into
// the current origin.
func (p *Page) RestoreLocalStorage(ctx context.Context, localJSON string) {
	if localJSON == "" || localJSON == "{}" {
		return
	}
	restoreStorage(p.page.Context(ctx), localJSON, "")
}

// Close closes the page and stops its event stream.
func (p *Page) Close() error {
	if p.mgr == nil {
		return p.page.Close()
	}
	return p.mgr.closePage(p.id)
}

func snapshotStorage(page *rod.Page, store string) string {
	jsFunc := fmt.Sprintf(`() => {
		try {
			const out = {};
			for (const key of Object.keys(%s)) {
				out[key] = %s.getItem(key);
			}
			return JSON.stringify(out);
		} catch (e) {
			return "{}";
		}
	}`, store, store)

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           jsFunc,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return "{}"
	}
	return res.Value.String()
}

func restoreStorage(page *rod.Page, localJSON, sessionJSON string) {
	_, _ = page.Evaluate(&rod.EvalOptions{
		JS: `
		(local, session) => {
			try {
				const l = JSON.parse(local || "{}");
				Object.entries(l).forEach(([k, v]) => localStorage.setItem(k, v));
			} catch (e) {}
			try {
				const s = JSON.parse(session || "{}");
				Object.entries(s).forEach(([k, v]) => sessionStorage.setItem(k, v));
			} catch (e) {}
		}
		`,
		JSArgs:       []interface{}{localJSON, sessionJSON},
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
}

// element adapts a rod element to dom.Element.
type element struct {
	el         *rod.Element
	navTimeout time.Duration
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select existing text: %w", err)
	}
	return el.Input(text)
}

func (e *element) Value(ctx context.Context) (string, error) {
	v, err := e.el.Context(ctx).Property("value")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *element) Tag(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *element) Checked(ctx context.Context) (bool, error) {
	v, err := e.el.Context(ctx).Property("checked")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (e *element) Select(ctx context.Context, option string, byValue bool) error {
	if byValue {
		return e.el.Context(ctx).Select([]string{fmt.Sprintf(`[value=%q]`, option)}, true, rod.SelectorTypeCSSSector)
	}
	return e.el.Context(ctx).Select([]string{optionPattern(option)}, true, rod.SelectorTypeText)
}

// optionPattern matches option text literally; rod compiles text
// selectors as regular expressions.
func optionPattern(option string) string {
	return regexp.QuoteMeta(option)
}

func (e *element) SetFiles(ctx context.Context, paths []string) error {
	return e.el.Context(ctx).SetFiles(paths)
}

func (e *element) Frame(ctx context.Context) (dom.Page, error) {
	fr, err := e.el.Context(ctx).Frame()
	if err != nil {
		return nil, fmt.Errorf("open iframe: %w", err)
	}
	return &Page{page: fr, navTimeout: e.navTimeout}, nil
}
