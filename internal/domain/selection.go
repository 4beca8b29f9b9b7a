package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Mode selects the recognition path.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Language is a supported transcription language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguagePersian Language = "fa"
)

// Direction is the writing direction of a language.
type Direction string

const (
	DirectionLTR Direction = "ltr"
	DirectionRTL Direction = "rtl"
)

// LanguageInfo holds the per-language lookup data.
type LanguageInfo struct {
	Language   Language  `json:"language"`
	Name       string    `json:"name"`
	OnlineCode string    `json:"onlineCode"`
	Direction  Direction `json:"direction"`
}

var languages = map[Language]LanguageInfo{
	LanguageEnglish: {Language: LanguageEnglish, Name: "English", OnlineCode: "en-US", Direction: DirectionLTR},
	LanguagePersian: {Language: LanguagePersian, Name: "Persian (Farsi)", OnlineCode: "fa-IR", Direction: DirectionRTL},
}

// Info returns the lookup entry for the language.
func (l Language) Info() (LanguageInfo, bool) {
	info, ok := languages[l]
	return info, ok
}

// OnlineCode returns the BCP-47 code sent to cloud backends.
func (l Language) OnlineCode() string {
	return languages[l].OnlineCode
}

// Languages lists the supported languages ordered by code.
func Languages() []LanguageInfo {
	out := make([]LanguageInfo, 0, len(languages))
	for _, info := range languages {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// ParseLanguage accepts a code ("en"), an online code ("fa-IR") or a display
// name ("Persian (Farsi)").
func ParseLanguage(value string) (Language, error) {
	v := strings.TrimSpace(value)
	for _, info := range languages {
		if strings.EqualFold(v, string(info.Language)) ||
			strings.EqualFold(v, info.OnlineCode) ||
			strings.EqualFold(v, info.Name) ||
			strings.EqualFold(v, strings.Fields(info.Name)[0]) {
			return info.Language, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", value)
}

// ParseMode accepts "online" or "offline".
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeOnline:
		return ModeOnline, nil
	case ModeOffline:
		return ModeOffline, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", value)
	}
}

// ParseSelection parses a mode and language pair.
func ParseSelection(mode string, language string) (Selection, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return Selection{}, err
	}
	l, err := ParseLanguage(language)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Mode: m, Language: l}, nil
}
