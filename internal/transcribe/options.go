package transcribe

import "strconv"

// option describes one configuration key an adapter accepts: the wire field
// it renames to (empty = keep the shared name) and an optional value parser.
// A parser returning ok=false drops the option.
type option struct {
	wire  string
	parse func(v any) (any, bool)
}

// optionTable maps shared vocabulary names to an adapter's wire options.
// Tables are built once at adapter construction.
type optionTable map[string]option

// project filters cfg through the table. Unknown keys drop silently, parsers
// run where present, everything else passes through under its wire name.
func (t optionTable) project(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for name, value := range cfg {
		opt, ok := t[name]
		if !ok {
			continue
		}
		if opt.parse != nil {
			parsed, ok := opt.parse(value)
			if !ok {
				continue
			}
			value = parsed
		}
		field := opt.wire
		if field == "" {
			field = name
		}
		out[field] = value
	}
	return out
}

// boolOption reads a flag that may arrive as a bool or a string form.
func boolOption(cfg map[string]any, name string) bool {
	switch v := cfg[name].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return false
}

// parseBool coerces bools and string forms for wire fields.
func parseBool(v any) (any, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return nil, false
		}
		return parsed, true
	}
	return nil, false
}

// parseInt coerces the numeric shapes a config map can carry into an int.
func parseInt(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return nil, false
		}
		return parsed, true
	}
	return nil, false
}

// parseFloat coerces numeric shapes into a float64.
func parseFloat(v any) (any, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, false
		}
		return parsed, true
	}
	return nil, false
}

// parseStringList normalizes phrase lists that may arrive as []string or
// as []any out of decoded JSON.
func parseStringList(v any) (any, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		return []string{list}, true
	}
	return nil, false
}
