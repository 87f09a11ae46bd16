// Package keys builds response cache keys.
package keys

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/kproj6/featureserver/internal/core/model"
)

const prefix = "resp"

// Area keys an area extraction of feature from the dataset at path.
// Inverted rectangles key the same as their normalized form.
func Area(feature, path string, b model.AreaBounds, stride int) string {
	r := b.Rect.Normalized()
	var sb strings.Builder
	sb.WriteString(path)
	for _, f := range []float64{r.UpperLeft.Lat, r.UpperLeft.Lon, r.LowerRight.Lat, r.LowerRight.Lon} {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	sb.WriteString("|d=")
	if b.Depth != nil {
		sb.WriteString(strconv.FormatFloat(*b.Depth, 'g', -1, 64))
	}
	sb.WriteString("|t=")
	if b.Time != nil {
		sb.WriteString(b.Time.UTC().Format(time.RFC3339Nano))
	}
	sb.WriteString("|s=")
	sb.WriteString(strconv.Itoa(stride))
	return build("area", feature, path, sb.String())
}

// Profile keys a depth profile of feature at one point.
func Profile(feature, path string, q model.PointQuery) string {
	canon := fmt.Sprintf("%s|%s|%s|t=%s", path,
		strconv.FormatFloat(q.Point.Lat, 'g', -1, 64),
		strconv.FormatFloat(q.Point.Lon, 'g', -1, 64),
		q.Time.UTC().Format(time.RFC3339Nano))
	return build("profile", feature, path, canon)
}

func build(kind, feature, path, canon string) string {
	sum := xxhash.Sum64String(canon)
	return fmt.Sprintf("%s:%s:%s:%s:h=%016x", prefix, kind, sanitize(feature), sanitize(filepath.Base(path)), sum)
}

// sanitize maps s onto [A-Za-z0-9._-], collapsing runs of replacements.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := '-'
		if isAlphaNum(r) || r == '_' || r == '.' {
			out = r
		}
		if out == '-' && prev == '-' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
