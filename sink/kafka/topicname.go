package kafka

import "fmt"

const maxTopicNameLen = 249

// ValidateTopicName enforces the broker's naming grammar: 1–249 characters
// drawn from [a-zA-Z0-9._-], and not the reserved "." or "..".
func ValidateTopicName(name string) error {
	if name == "" {
		return fmt.Errorf("topic name is empty")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("topic name %q is reserved", name)
	}
	if len(name) > maxTopicNameLen {
		return fmt.Errorf("topic name exceeds %d characters", maxTopicNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return fmt.Errorf("topic name %q contains invalid character %q", name, c)
		}
	}
	return nil
}

// discouragedPrefix reports names that collide with internal naming habits.
// They are legal but worth a warning.
func discouragedPrefix(name string) bool {
	return len(name) > 0 && (name[0] == '.' || name[0] == '_')
}
