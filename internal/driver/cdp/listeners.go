package cdp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// listen attaches the event handlers that feed dialogs and console logs.
func (d *Driver) listen() {
	chromedp.ListenTarget(d.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			d.handleDialogOpening(ev)
		case *page.EventJavascriptDialogClosed:
			d.clearDialog()
		case *runtime.EventConsoleAPICalled:
			d.handleConsoleAPICalled(ev)
		case *runtime.EventExceptionThrown:
			d.handleExceptionThrown(ev)
		}
	})
}

func (d *Driver) handleDialogOpening(e *page.EventJavascriptDialogOpening) {
	d.logger.Debug("Dialog opened.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialog, d.prompt = e, ""
}

func (d *Driver) handleConsoleAPICalled(e *runtime.EventConsoleAPICalled) {
	entry := schemas.LogEntry{
		Level:     consoleLevel(e.Type),
		Message:   consoleText(e.Args),
		Timestamp: eventTime(e.Timestamp),
	}
	d.appendLog(entry)
}

func (d *Driver) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	// The description usually has the most useful info, including the stack trace.
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	d.appendLog(schemas.LogEntry{Level: "SEVERE", Message: text, Timestamp: eventTime(e.Timestamp)})
}

func (d *Driver) appendLog(entry schemas.LogEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = append(d.logs, entry)
}

// consoleLevel maps console API calls onto WebDriver log levels.
func consoleLevel(t runtime.APIType) string {
	switch t {
	case runtime.APITypeError, runtime.APITypeAssert:
		return "SEVERE"
	case runtime.APITypeWarning:
		return "WARNING"
	case runtime.APITypeDebug:
		return "DEBUG"
	default:
		return "INFO"
	}
}

func consoleText(args []*runtime.RemoteObject) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteString(" ")
		}
		var val interface{}
		switch {
		case arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil:
			b.WriteString(fmt.Sprintf("%v", val))
		case arg.Description != "":
			b.WriteString(arg.Description)
		default:
			b.WriteString(fmt.Sprintf("[%s]", arg.Type))
		}
	}
	return b.String()
}

func eventTime(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now()
	}
	return ts.Time()
}
