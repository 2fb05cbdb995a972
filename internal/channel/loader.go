package channel

import (
	_ "embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/reaction"
)

//go:embed schema.json
var schemaJSON string

// Loader parses channel units.
type Loader struct {
	schema *gojsonschema.Schema
	logger *slog.Logger
}

// NewLoader creates a loader with the embedded unit schema.
func NewLoader(logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile channel schema: %w", err)
	}
	return &Loader{schema: schema, logger: logger}, nil
}

// LoadDir loads every unit under dir. See LoadFS.
func (l *Loader) LoadDir(dir string) (map[string]*Channel, []error) {
	if _, err := os.Stat(dir); err != nil {
		return map[string]*Channel{}, []error{fmt.Errorf("failed to read channels directory: %w", err)}
	}
	return l.LoadFS(os.DirFS(dir))
}

// LoadFS loads every *.yml and *.yaml file in fsys, recursively. The channel
// id is the file name without extension. Files are visited in lexical path
// order; a later file with an id that was already loaded is reported with
// ErrDuplicateChannel and skipped. Failed units never stop the others.
func (l *Loader) LoadFS(fsys fs.FS) (map[string]*Channel, []error) {
	channels := make(map[string]*Channel)
	var errs []error

	walkErr := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, &LoadError{File: p, Err: err})
			return nil
		}
		if d.IsDir() || !isYAMLFile(p) {
			return nil
		}

		id := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if prev, ok := channels[id]; ok {
			errs = append(errs, &LoadError{File: p, ID: id, Err: fmt.Errorf("%w: already loaded from %s", ErrDuplicateChannel, prev.File)})
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			errs = append(errs, &LoadError{File: p, ID: id, Err: err})
			return nil
		}
		ch, err := l.LoadChannel(id, data)
		if err != nil {
			errs = append(errs, &LoadError{File: p, ID: id, Err: err})
			return nil
		}
		ch.File = p
		channels[id] = ch
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	for _, err := range errs {
		l.logger.Error("failed to load channel", "error", err)
	}
	return channels, errs
}

// LoadChannel parses a single unit.
func (l *Loader) LoadChannel(id string, data []byte) (*Channel, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := l.validate(&doc); err != nil {
		return nil, err
	}
	root := resolve(&doc)

	optNode := format.Lookup(root, "Options")
	if optNode == nil {
		return nil, fmt.Errorf("%w: Options", ErrMissingField)
	}
	var opts options
	if err := optNode.Decode(&opts); err != nil {
		return nil, fmt.Errorf("Options: %w", err)
	}
	settings, err := opts.settings()
	if err != nil {
		return nil, err
	}

	ch := &Channel{ID: id, Settings: settings, Source: data}

	bindings := format.Lookup(root, "Bindings")
	if ch.Bindings.Command, err = stringList(format.Lookup(bindings, "Command")); err != nil {
		return nil, fmt.Errorf("Bindings.Command: %w", err)
	}
	if !settings.Private {
		if ch.Bindings.Prefix, err = stringList(format.Lookup(bindings, "Prefix")); err != nil {
			return nil, fmt.Errorf("Bindings.Prefix: %w", err)
		}
	}

	events := format.Lookup(root, "Events")
	for _, ev := range []struct {
		key string
		dst **reaction.Reaction
	}{
		{"Process", &ch.Events.Process},
		{"Send", &ch.Events.Send},
		{"Join", &ch.Events.Join},
		{"Quit", &ch.Events.Quit},
	} {
		if *ev.dst, err = reaction.Parse(format.Lookup(events, ev.key)); err != nil {
			return nil, fmt.Errorf("Events.%s: %w", ev.key, err)
		}
	}

	if ch.Console, err = format.ParseFormats(format.Lookup(root, "Console"), true); err != nil {
		return nil, fmt.Errorf("Console: %w", err)
	}

	if settings.Private {
		pf := &PrivateFormats{}
		if pf.Sender, err = format.ParseFormats(format.Lookup(root, "Sender"), false); err != nil {
			return nil, fmt.Errorf("Sender: %w", err)
		}
		if pf.Receiver, err = format.ParseFormats(format.Lookup(root, "Receiver"), false); err != nil {
			return nil, fmt.Errorf("Receiver: %w", err)
		}
		ch.Private = pf
		return ch, nil
	}

	if ch.Formats, err = format.ParseFormats(format.Lookup(root, "Formats"), false); err != nil {
		return nil, fmt.Errorf("Formats: %w", err)
	}
	return ch, nil
}

func (l *Loader) validate(doc *yaml.Node) error {
	var generic any
	if err := doc.Decode(&generic); err != nil {
		return fmt.Errorf("failed to decode unit: %w", err)
	}
	if generic == nil {
		generic = map[string]any{}
	}
	result, err := l.schema.Validate(gojsonschema.NewGoLoader(normalize(generic)))
	if err != nil {
		return fmt.Errorf("failed to validate unit: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidUnit, strings.Join(msgs, "; "))
}

// normalize turns YAML maps with non-string keys into JSON-compatible maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	}
	return v
}

// stringList accepts a single string or a list of strings.
func stringList(n *yaml.Node) ([]string, error) {
	n = resolve(n)
	if n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil, nil
	}
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, nil
	}
	var out []string
	if err := n.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && (n.Kind == yaml.AliasNode || n.Kind == yaml.DocumentNode) {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
			continue
		}
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	return n
}

func isYAMLFile(name string) bool {
	ext := path.Ext(name)
	return ext == ".yml" || ext == ".yaml"
}
