package recorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/twmb/murmur3"
)

// Metadata is what can be read from a payload without interpreting it
// further.
type Metadata struct {
	Name        string
	Icon        string
	Size        int
	Fingerprint string
	Empty       bool
}

// Fingerprint returns the murmur3 32-bit hash of payload as 8 hex digits.
// Identical payloads served under different title IDs share a fingerprint.
func Fingerprint(payload []byte) string {
	return fmt.Sprintf("%08x", murmur3.Sum32(payload))
}

// ExtractMetadata reads the title name and icon from an xml or json
// payload. Unparseable payloads yield only size and fingerprint.
func ExtractMetadata(ext string, payload []byte) Metadata {
	md := Metadata{
		Size:        len(payload),
		Fingerprint: Fingerprint(payload),
		Empty:       len(bytes.TrimSpace(payload)) == 0,
	}
	if md.Empty {
		return md
	}

	switch ext {
	case "xml":
		md.Name, md.Icon = parseXMLMetadata(payload)
	case "json":
		md.Name, md.Icon = parseJSONMetadata(payload)
	}
	return md
}

func parseXMLMetadata(payload []byte) (name, icon string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return "", ""
	}
	name = strings.TrimSpace(doc.Find("name").First().Text())
	icon = strings.TrimSpace(doc.Find("icon").First().Text())
	return name, icon
}

type jsonTitle struct {
	Name  string `json:"name"`
	Names []struct {
		Name string `json:"name"`
	} `json:"names"`
	Icons []struct {
		Icon string `json:"icon"`
	} `json:"icons"`
}

func parseJSONMetadata(payload []byte) (name, icon string) {
	var t jsonTitle
	if err := json.Unmarshal(payload, &t); err != nil {
		return "", ""
	}
	name = t.Name
	if name == "" && len(t.Names) > 0 {
		name = t.Names[0].Name
	}
	if len(t.Icons) > 0 {
		icon = t.Icons[0].Icon
	}
	return strings.TrimSpace(name), strings.TrimSpace(icon)
}
