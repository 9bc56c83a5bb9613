package eventbus

import "strings"

// MatchTopic reports whether routingKey matches an AMQP topic pattern, where
// "*" stands for exactly one dot-separated word and "#" for zero or more.
func MatchTopic(pattern, routingKey string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch head := pattern[0]; head {
		case "#":
			for skip := 0; skip <= len(key); skip++ {
				if matchWords(pattern[1:], key[skip:]) {
					return true
				}
			}
			return false
		default:
			if len(key) == 0 || (head != "*" && head != key[0]) {
				return false
			}
			pattern, key = pattern[1:], key[1:]
		}
	}
	return len(key) == 0
}
