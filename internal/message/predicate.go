package message

// Predicate filters messages for a bus subscription.
type Predicate func(Message) bool

// IsEvent matches event messages carrying any of the given events.
func IsEvent(events ...Event) Predicate {
	return func(m Message) bool {
		ev, ok := m.(EventMessage)
		if !ok {
			return false
		}
		for _, e := range events {
			if ev.Event == e {
				return true
			}
		}
		return false
	}
}

// IsCommand matches command messages carrying any of the given commands.
func IsCommand(names ...CommandName) Predicate {
	return func(m Message) bool {
		cmd, ok := m.(CommandMessage)
		if !ok || cmd.Command == nil {
			return false
		}
		for _, n := range names {
			if cmd.Command.Name() == n {
				return true
			}
		}
		return false
	}
}

// IsFrom matches messages emitted by the source with the given id.
func IsFrom(id string) Predicate {
	return func(m Message) bool {
		return m.Head().Source.ID == id
	}
}

// IsFromType matches messages emitted by any source of the given type.
func IsFromType(t SourceType) Predicate {
	return func(m Message) bool {
		return m.Head().Source.Type == t
	}
}

// FromSource matches messages whose source satisfies fn.
func FromSource(fn func(Source) bool) Predicate {
	return func(m Message) bool {
		return fn(m.Head().Source)
	}
}
