package storage

import (
	"fmt"
	"strings"
)

// Key layout. Cleanup relies on these prefixes, so every producer and
// consumer goes through this file.
//
//	videos/{session}/{slot}.{ext}              raw upload
//	videos/{session}/standardized_{slot}.mp4   normalized clip
//	slides/{session}/{slide}.mp4               rendered slide clip
//	demos/{session}/...                        stitch intermediates
//	demos/{session}/final_*                    deliverables

func ClipKey(sessionID, slot, ext string) string {
	return fmt.Sprintf("videos/%s/%s.%s", sessionID, slot, ext)
}

func StandardizedKey(sessionID, slot string) string {
	return fmt.Sprintf("videos/%s/standardized_%s.mp4", sessionID, slot)
}

func SlideKey(sessionID, slideID string) string {
	return fmt.Sprintf("slides/%s/%s.mp4", sessionID, slideID)
}

func StitchedKey(sessionID string) string {
	return fmt.Sprintf("demos/%s/stitched.mp4", sessionID)
}

func FinalKey(sessionID, variant string) string {
	return fmt.Sprintf("demos/%s/final_%s.mp4", sessionID, variant)
}

func ThumbnailKey(sessionID string) string {
	return fmt.Sprintf("demos/%s/final_thumbnail.jpg", sessionID)
}

func VideoPrefix(sessionID string) string { return fmt.Sprintf("videos/%s/", sessionID) }
func SlidePrefix(sessionID string) string { return fmt.Sprintf("slides/%s/", sessionID) }
func DemoPrefix(sessionID string) string  { return fmt.Sprintf("demos/%s/", sessionID) }

// IsFinal reports whether a demos/ object is a deliverable that
// intermediate cleanup must keep.
func IsFinal(key string) bool {
	return strings.HasPrefix(lastSegment(key), "final_")
}

// ParseUploadKey splits a raw upload key into session id and slot.
// The slot is the object filename up to the first '.' or '_', so
// standardized renditions and foreign keys both fail the parse.
func ParseUploadKey(key string) (sessionID, slot string, ok bool) {
	rest, found := strings.CutPrefix(key, "videos/")
	if !found {
		return "", "", false
	}
	sessionID, filename, found := strings.Cut(rest, "/")
	if !found || sessionID == "" || strings.Contains(filename, "/") {
		return "", "", false
	}
	slot = filename
	if i := strings.IndexAny(slot, "._"); i >= 0 {
		slot = slot[:i]
	}
	if slot == "" || strings.HasPrefix(filename, "standardized_") {
		return "", "", false
	}
	return sessionID, slot, true
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}
