// Package media classifies user-supplied files into the image and audio inputs
// of a render and discovers the audio duration.
package media

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Role is the part a file plays in a render.
type Role string

const (
	RoleImage Role = "image"
	RoleAudio Role = "audio"
)

// File is a user-supplied file with its declared MIME type.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Input is a file that was assigned a role.
type Input struct {
	Role        Role
	Name        string
	ContentType string
	Data        []byte
}

// Classification is the result of Classify. Image and Audio are nil when no
// file of that kind was supplied.
type Classification struct {
	Image *Input
	Audio *Input

	// Discarded holds earlier matches that a later file of the same role replaced.
	Discarded []Input
	// Ignored holds files that are neither images nor audio.
	Ignored []File
}

// Complete reports whether both roles are filled.
func (c Classification) Complete() bool {
	return c.Image != nil && c.Audio != nil
}

// Missing lists the roles that have no input, image first.
func (c Classification) Missing() []Role {
	var missing []Role
	if c.Image == nil {
		missing = append(missing, RoleImage)
	}
	if c.Audio == nil {
		missing = append(missing, RoleAudio)
	}
	return missing
}

// Classify assigns roles to files in order. A type starting with "image/"
// selects the image and "audio/" the audio; a later match replaces an earlier
// one. Files without a declared type, or declared as application/octet-stream,
// are sniffed from their content.
func Classify(files []File) Classification {
	var c Classification

	for _, f := range files {
		contentType := DetectContentType(f)

		var role Role
		switch {
		case strings.HasPrefix(contentType, "image/"):
			role = RoleImage
		case strings.HasPrefix(contentType, "audio/"):
			role = RoleAudio
		default:
			c.Ignored = append(c.Ignored, f)
			continue
		}

		in := &Input{Role: role, Name: f.Name, ContentType: contentType, Data: f.Data}
		slot := &c.Image
		if role == RoleAudio {
			slot = &c.Audio
		}
		if *slot != nil {
			c.Discarded = append(c.Discarded, **slot)
		}
		*slot = in
	}

	return c
}

// DetectContentType returns the normalized MIME type of f: lowercase, without
// parameters. Undeclared or generic types are sniffed from the data.
func DetectContentType(f File) string {
	ct := normalizeContentType(f.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(mimetype.Detect(f.Data).String())
	}
	return ct
}

func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}
