// Package notify shows desktop notifications in the configured UI language.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"amd-helper/models"

	"github.com/gen2brain/beeep"
)

type Key string

const (
	KeyReady         Key = "ready"
	KeyEngineSwitch  Key = "engine_switched"
	KeyRunFailed     Key = "run_failed"
	KeyNoCaptureTool Key = "no_capture_tool"
)

type message struct {
	title string
	body  string
}

var translations = map[string]map[Key]message{
	"en": {
		KeyReady:         {models.AppName + " is ready", "Listening for triggers on port %v."},
		KeyEngineSwitch:  {"TTS Engine Switched", "Current engine: %v"},
		KeyRunFailed:     {"Reading failed", "%v"},
		KeyNoCaptureTool: {"No screenshot tool", "Install grim+slurp, gnome-screenshot, spectacle, scrot or maim."},
	},
	"zh_CN": {
		KeyReady:         {models.AppName + " 已就绪", "正在端口 %v 上等待触发。"},
		KeyEngineSwitch:  {"TTS引擎已切换", "当前引擎: %v"},
		KeyRunFailed:     {"朗读失败", "%v"},
		KeyNoCaptureTool: {"未找到截图工具", "请安装 grim+slurp、gnome-screenshot、spectacle、scrot 或 maim。"},
	},
	"zh_TW": {
		KeyReady:         {models.AppName + " 已就緒", "正在連接埠 %v 上等待觸發。"},
		KeyEngineSwitch:  {"TTS引擎已切換", "當前引擎: %v"},
		KeyRunFailed:     {"朗讀失敗", "%v"},
		KeyNoCaptureTool: {"未找到截圖工具", "請安裝 grim+slurp、gnome-screenshot、spectacle、scrot 或 maim。"},
	},
}

type Desktop struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	lang    string
	enabled bool
	send    func(title, body string) error
}

func NewDesktop(logger *slog.Logger, uiLang string, enabled bool) *Desktop {
	return &Desktop{
		logger:  logger.With("component", "notify"),
		lang:    uiLang,
		enabled: enabled,
		send: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
	}
}

// Text renders a message, falling back to English for unknown UI languages.
func Text(uiLang string, key Key, args ...any) (string, string) {
	table, ok := translations[uiLang]
	if !ok && strings.HasPrefix(uiLang, "zh") {
		table = translations["zh_CN"]
	} else if !ok {
		table = translations["en"]
	}
	m := table[key]
	body := m.body
	if strings.Contains(body, "%v") {
		body = fmt.Sprintf(body, args...)
	}
	return m.title, body
}

// Notify is best effort; failures only reach the log.
func (d *Desktop) Notify(key Key, args ...any) {
	if d == nil || !d.enabled {
		return
	}
	d.mu.RLock()
	lang := d.lang
	d.mu.RUnlock()
	title, body := Text(lang, key, args...)
	if err := d.send(title, body); err != nil {
		d.logger.Warn("failed to send notification", "key", key, "error", err)
	}
}

func (d *Desktop) SetLanguage(uiLang string) {
	d.mu.Lock()
	d.lang = uiLang
	d.mu.Unlock()
}
