package generation

import "strings"

// repairTruncatedJSON дописывает закрывающие кавычку и скобки к объекту, оборванному
// на лимите токенов. Возвращает "", если в тексте нет "{".
// Скобки внутри строк не учитываются, порядок закрытия берется из стека.
func repairTruncatedJSON(content string) string {
	content = stripCodeFence(content)
	first := strings.Index(content, "{")
	if first < 0 {
		return ""
	}
	body := strings.TrimRight(content[first:], " \t\r\n")

	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(body)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	repaired := strings.TrimRight(b.String(), " \t\r\n")
	if strings.HasSuffix(repaired, ",") {
		repaired = repaired[:len(repaired)-1]
	}
	b.Reset()
	b.WriteString(repaired)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
