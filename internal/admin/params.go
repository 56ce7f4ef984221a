package admin

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

// Params - параметры функции в том виде, в каком их прислал клиент (после JSON)
type Params map[string]interface{}

// String: отсутствующий параметр = ""
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", domain.Invalid(fmt.Sprintf("parameter %s must be a string", key))
	}
	return strings.TrimSpace(s), nil
}

func (p Params) RequiredString(key string) (string, error) {
	s, err := p.String(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", domain.Invalid(fmt.Sprintf("parameter %s is required", key))
	}
	return s, nil
}

func (p Params) Strings(key string) ([]string, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, domain.Invalid(fmt.Sprintf("parameter %s must be a list of strings", key))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, domain.Invalid(fmt.Sprintf("parameter %s must be a list of strings", key))
	}
}

// Int принимает числа из JSON (float64), json.Number и строки
func (p Params) Int(key string, def int) (int, error) {
	var n int
	var err error
	switch v := p[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			err = fmt.Errorf("not an integer")
		}
		n = int(v)
	case json.Number:
		var i int64
		i, err = v.Int64()
		n = int(i)
	case string:
		n, err = strconv.Atoi(strings.TrimSpace(v))
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil {
		return 0, domain.Invalid(fmt.Sprintf("parameter %s must be an integer", key))
	}
	return n, nil
}

// Time - RFC3339; отсутствующий параметр = нулевое время
func (p Params) Time(key string) (time.Time, error) {
	s, err := p.String(key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.Invalid(fmt.Sprintf("parameter %s must be an RFC3339 timestamp", key))
	}
	return t, nil
}
