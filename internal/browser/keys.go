package browser

import (
	"strings"

	"github.com/tebeka/selenium"
)

// namedKeys maps the {name} tokens accepted by Keys to WebDriver key codes.
var namedKeys = map[string]string{
	"null":        selenium.NullKey,
	"cancel":      selenium.CancelKey,
	"help":        selenium.HelpKey,
	"backspace":   selenium.BackspaceKey,
	"back_space":  selenium.BackspaceKey,
	"tab":         selenium.TabKey,
	"clear":       selenium.ClearKey,
	"return":      selenium.ReturnKey,
	"enter":       selenium.EnterKey,
	"shift":       selenium.ShiftKey,
	"control":     selenium.ControlKey,
	"ctrl":        selenium.ControlKey,
	"alt":         selenium.AltKey,
	"pause":       selenium.PauseKey,
	"escape":      selenium.EscapeKey,
	"space":       selenium.SpaceKey,
	"page_up":     selenium.PageUpKey,
	"page_down":   selenium.PageDownKey,
	"end":         selenium.EndKey,
	"home":        selenium.HomeKey,
	"left":        selenium.LeftArrowKey,
	"arrow_left":  selenium.LeftArrowKey,
	"up":          selenium.UpArrowKey,
	"arrow_up":    selenium.UpArrowKey,
	"right":       selenium.RightArrowKey,
	"arrow_right": selenium.RightArrowKey,
	"down":        selenium.DownArrowKey,
	"arrow_down":  selenium.DownArrowKey,
	"insert":      selenium.InsertKey,
	"delete":      selenium.DeleteKey,
	"semicolon":   selenium.SemicolonKey,
	"equals":      selenium.EqualsKey,
	"numpad0":     selenium.Numpad0Key,
	"numpad1":     selenium.Numpad1Key,
	"numpad2":     selenium.Numpad2Key,
	"numpad3":     selenium.Numpad3Key,
	"numpad4":     selenium.Numpad4Key,
	"numpad5":     selenium.Numpad5Key,
	"numpad6":     selenium.Numpad6Key,
	"numpad7":     selenium.Numpad7Key,
	"numpad8":     selenium.Numpad8Key,
	"numpad9":     selenium.Numpad9Key,
	"multiply":    selenium.MultiplyKey,
	"add":         selenium.AddKey,
	"separator":   selenium.SeparatorKey,
	"decimal":     selenium.DecimalKey,
	"divide":      selenium.DivideKey,
	"f1":          selenium.F1Key,
	"f2":          selenium.F2Key,
	"f3":          selenium.F3Key,
	"f4":          selenium.F4Key,
	"f5":          selenium.F5Key,
	"f6":          selenium.F6Key,
	"f7":          selenium.F7Key,
	"f8":          selenium.F8Key,
	"f9":          selenium.F9Key,
	"f10":         selenium.F10Key,
	"f11":         selenium.F11Key,
	"f12":         selenium.F12Key,
	"meta":        selenium.MetaKey,
	"command":     selenium.MetaKey,
}

// ParseKey translates a single {name} token into its WebDriver key code.
// Anything else, including unknown names, is returned unchanged.
func ParseKey(key string) string {
	if len(key) > 2 && strings.HasPrefix(key, "{") && strings.HasSuffix(key, "}") {
		if code, ok := namedKeys[strings.ToLower(key[1:len(key)-1])]; ok {
			return code
		}
	}
	return key
}

// Chord presses keys together: modifiers stay held until the chord ends.
// Chord("{shift}", "taylor") types "TAYLOR".
func Chord(keys ...string) string {
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(ParseKey(k))
	}
	sb.WriteString(selenium.NullKey)
	return sb.String()
}
