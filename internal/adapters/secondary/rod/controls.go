package rod

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"go-meeting-transcriber/internal/core/ports"
)

// candidate is one way to locate a control. Text, when set, is a JS regex matched
// against the element's text.
type candidate struct {
	Selector string
	Text     string
}

// controlCandidates lists locators per intent in priority order. The class-name
// selectors track the current call UI build and are the first thing to update
// when the page layout changes.
var controlCandidates = map[ports.ControlIntent][]candidate{
	ports.IntentContinueInBrowser: {
		{Selector: "button", Text: "/Продолжить в браузере/i"},
		{Selector: "button", Text: "/Continue in browser/i"},
	},
	ports.IntentNameInput: {
		{Selector: `input[placeholder*="имя" i]`},
		{Selector: `input[placeholder*="name" i]`},
		{Selector: `input[name="name"]`},
		{Selector: `input[name="displayName"]`},
		{Selector: `input[type="text"]`},
	},
	ports.IntentMuteMic: {
		{Selector: `button[title="Выключить микрофон"]`},
		{Selector: `button[title="Turn off microphone"]`},
		{Selector: ".MicrophoneButton_XysKF button"},
	},
	ports.IntentMuteCamera: {
		{Selector: `button[title="Выключить камеру"]`},
		{Selector: `button[title="Turn off camera"]`},
		{Selector: ".CameraButton_kttfg button"},
	},
	ports.IntentJoin: {
		{Selector: "button", Text: "/Войти/i"},
		{Selector: "button", Text: "/Присоединиться/i"},
		{Selector: "button", Text: "/Join/i"},
		{Selector: "button", Text: "/Подключиться/i"},
		{Selector: `button[type="submit"]`},
	},
	ports.IntentEndIndicator: {
		{Selector: "h1, h2, h3, p, span, div", Text: `/^\s*Конференция завершена\s*$/`},
		{Selector: "h1, h2, h3, p, span, div", Text: `/^\s*Встреча завершена\s*$/`},
		{Selector: "h1, h2, h3, p, span, div", Text: `/^\s*Meeting ended\s*$/i`},
		{Selector: "h1, h2, h3, p, span, div", Text: `/^\s*Вы покинули встречу\s*$/`},
		{Selector: "h1, h2, h3, p, span, div", Text: `/^\s*Вы вышли из встречи\s*$/`},
		{Selector: "button", Text: "/Вернуться/"},
		{Selector: "button", Text: "/Перейти на главную/"},
	},
}

// activePrefixes mark a toggle that is currently on: its title offers to switch it off.
var activePrefixes = []string{"выключить", "turn off"}

type control struct {
	el     *rod.Element
	intent ports.ControlIntent
}

func (c *control) Click(ctx context.Context) error {
	el := c.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return classify(err)
	}
	return classify(el.Click(proto.InputMouseButtonLeft, 1))
}

func (c *control) Fill(ctx context.Context, text string) error {
	el := c.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return classify(err)
	}
	return classify(el.Input(text))
}

func (c *control) Active(ctx context.Context) (bool, error) {
	el := c.el.Context(ctx)
	for _, name := range []string{"aria-pressed", "aria-checked"} {
		v, err := el.Attribute(name)
		if err != nil {
			return false, classify(err)
		}
		if v != nil {
			return *v == "true", nil
		}
	}
	title, err := el.Attribute("title")
	if err != nil {
		return false, classify(err)
	}
	if title == nil {
		// A located switch-off button with no state hints is assumed on.
		return true, nil
	}
	return isActiveTitle(*title), nil
}

func (c *control) Label(ctx context.Context) string {
	el := c.el.Context(ctx)
	if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	if title, err := el.Attribute("title"); err == nil && title != nil {
		return *title
	}
	return string(c.intent)
}

func isActiveTitle(title string) bool {
	title = strings.ToLower(strings.TrimSpace(title))
	for _, prefix := range activePrefixes {
		if strings.HasPrefix(title, prefix) {
			return true
		}
	}
	return false
}
