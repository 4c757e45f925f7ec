// Package messages holds the user-facing texts shown by the API and the CLI
// in English and French.
package messages

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	keyMissingInputs  = "missing_inputs"
	keyEngineNotReady = "engine_not_ready"
	keyVideoSaved     = "video_saved"
)

// Supported lists the available languages; the first is the fallback.
var Supported = []language.Tag{language.English, language.French}

var (
	cat     = newCatalog()
	matcher = language.NewMatcher(Supported)
)

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	entries := map[language.Tag]map[string]string{
		language.English: {
			keyMissingInputs:  "Please select an image and an audio file.",
			keyEngineNotReady: "The video engine is not loaded yet.",
			keyVideoSaved:     "Video saved to %s",
		},
		language.French: {
			keyMissingInputs:  "Veuillez sélectionner une image et un fichier audio.",
			keyEngineNotReady: "Le moteur vidéo n'est pas encore chargé.",
			keyVideoSaved:     "Vidéo enregistrée dans %s",
		},
	}

	for tag, msgs := range entries {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Match picks the best supported language for an Accept-Language header
// value or a plain tag such as "fr". Empty or unparsable input yields English.
func Match(accept string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return Supported[0]
	}
	_, idx, _ := matcher.Match(tags...)
	return Supported[idx]
}

func printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(cat))
}

// MissingInputs is shown when the image or the audio is missing.
func MissingInputs(tag language.Tag) string {
	return printer(tag).Sprintf(keyMissingInputs)
}

// EngineNotReady is shown when a render is requested before the engine loaded.
func EngineNotReady(tag language.Tag) string {
	return printer(tag).Sprintf(keyEngineNotReady)
}

// VideoSaved reports where the CLI wrote the video.
func VideoSaved(tag language.Tag, path string) string {
	return printer(tag).Sprintf(keyVideoSaved, path)
}
