package event

// Payload is one inbound notification as decoded JSON. Ephemeral: it lives
// for a single dispatch call and is never persisted.
type Payload map[string]any

func (p Payload) str(key string) string {
	v, _ := p[key].(string)
	return v
}

func (p Payload) child(key string) Payload {
	if m, ok := p[key].(map[string]any); ok {
		return Payload(m)
	}
	if m, ok := p[key].(Payload); ok {
		return m
	}
	return nil
}

// clone copies the payload deeply enough that popping keys or reading nested
// objects never mutates the caller's map.
func (p Payload) clone() Payload {
	if p == nil {
		return nil
	}
	cp := make(Payload, len(p))
	for k, v := range p {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case Payload:
		return map[string]any(x.clone())
	case []any:
		s := make([]any, len(x))
		for i := range x {
			s[i] = cloneValue(x[i])
		}
		return s
	default:
		return v
	}
}

// ThreadID derives the registration partition key for a thread.
func ThreadID(channelID, threadTS string) string {
	return channelID + "_" + threadTS
}
