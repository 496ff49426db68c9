package client

import (
	"encoding/json"
	"os"
	"reflect"
	"strings"

	"github.com/mdouchement/unionboard/pkg/structs"
	"github.com/oleiade/reflections"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Keys assigned by the server, ignored in drafts.
var serverKeys = []string{"id", "created_at", "updated_at"}

// ReadDraft reads the YAML document at filename and parses the `field=path` attachments.
func ReadDraft(filename string, attachments []string) (Draft, error) {
	document, err := os.ReadFile(filename)
	if err != nil {
		return Draft{}, errors.Wrap(err, "could not read draft")
	}

	d := Draft{
		Document:    document,
		Attachments: map[string]string{},
	}
	for _, attachment := range attachments {
		field, path, ok := strings.Cut(attachment, "=")
		field = strings.TrimSpace(field)
		path = strings.TrimSpace(path)
		if !ok || field == "" || path == "" {
			return Draft{}, errors.Errorf("invalid attachment %q, expected field=path", attachment)
		}
		d.Attachments[field] = path
	}
	return d, nil
}

// decode applies the YAML document on top of base.
// Keys are the JSON names of the fields. Scalars given to string fields are kept as written.
func decode[T any](document []byte, base T) (T, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(document, &doc); err != nil {
		return base, errors.Wrap(err, "could not parse draft")
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode || len(doc.Content[0].Content) == 0 {
		return base, errors.New("draft must be a non-empty mapping")
	}

	text := textual(base)
	fields := map[string]any{}

	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i].Value, m.Content[i+1]
		if contains(serverKeys, key) {
			continue
		}

		switch {
		case text[key] == reflect.String && value.Kind == yaml.ScalarNode:
			fields[key] = value.Value
			if value.ShortTag() == "!!null" {
				fields[key] = ""
			}
			continue
		case text[key] == reflect.Slice && value.Kind == yaml.SequenceNode:
			values := make([]string, 0, len(value.Content))
			for _, n := range value.Content {
				values = append(values, n.Value)
			}
			fields[key] = values
			continue
		}

		var v any
		if err := value.Decode(&v); err != nil {
			return base, errors.Wrapf(err, "invalid value for %s", key)
		}
		fields[key] = v
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return base, errors.Wrap(err, "could not serialize draft")
	}

	draft := base
	err = json.Unmarshal(payload, &draft)
	return draft, errors.Wrap(err, "invalid draft")
}

// textual returns the JSON names of the string and []string fields of obj.
func textual(obj any) map[string]reflect.Kind {
	names, err := reflections.Fields(obj)
	if err != nil {
		return nil
	}

	fields := map[string]reflect.Kind{}
	for _, name := range names {
		kind, err := reflections.GetFieldKind(obj, name)
		if err != nil {
			continue
		}

		switch kind {
		case reflect.String:
			fields[structs.JSONName(obj, name)] = kind
		case reflect.Slice:
			if typ, _ := reflections.GetFieldType(obj, name); typ == "[]string" {
				fields[structs.JSONName(obj, name)] = kind
			}
		}
	}
	return fields
}

// toYAML renders v as a block-style YAML document keeping the order of its JSON keys.
func toYAML(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not serialize record")
	}

	var node yaml.Node
	if err = yaml.Unmarshal(payload, &node); err != nil {
		return nil, errors.Wrap(err, "could not convert record")
	}
	plain(&node)

	payload, err = yaml.Marshal(&node)
	return payload, errors.Wrap(err, "could not convert record")
}

// plain drops the flow and quoting styles inherited from JSON.
func plain(node *yaml.Node) {
	node.Style = 0
	for _, n := range node.Content {
		plain(n)
	}
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
