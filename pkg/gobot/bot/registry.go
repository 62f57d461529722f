package bot

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the commands available to the router.
type Registry struct {
	commands map[string]*Command
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Add registers a command. A name can only be registered once.
func (r *Registry) Add(cmd *Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("%w: %q", ErrCommandExists, cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// Remove unregisters a command.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; !exists {
		return fmt.Errorf("%w: %q", ErrCommandNotFound, name)
	}
	delete(r.commands, name)
	return nil
}

// Resolve looks a command up by name.
func (r *Registry) Resolve(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// List returns every command sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Help renders the user-facing command list; admin commands are left out.
func (r *Registry) Help(prefix string) string {
	var entries []string
	width := 0
	for _, cmd := range r.List() {
		if cmd.AdminOnly {
			continue
		}
		name := cmd.Name
		if cmd.Usage != "" {
			name += " " + cmd.Usage
		}
		if len(name) > width {
			width = len(name)
		}
		entries = append(entries, name, cmd.Help)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available commands, all preceded by `%s`:", prefix)
	for i := 0; i < len(entries); i += 2 {
		fmt.Fprintf(&b, "\n`%-*s : %s`", width, entries[i], entries[i+1])
	}
	return b.String()
}

// CommandSet tracks the commands one module registered so they can be
// removed together when the module stops.
type CommandSet struct {
	registry *Registry
	names    []string
}

// NewCommandSet returns an empty set bound to registry.
func NewCommandSet(registry *Registry) *CommandSet {
	return &CommandSet{registry: registry}
}

// Add registers every command. On failure the ones already added by this
// call are removed again.
func (s *CommandSet) Add(cmds ...*Command) error {
	added := 0
	for _, cmd := range cmds {
		if err := s.registry.Add(cmd); err != nil {
			for _, c := range cmds[:added] {
				s.registry.Remove(c.Name)
			}
			s.names = s.names[:len(s.names)-added]
			return err
		}
		s.names = append(s.names, cmd.Name)
		added++
	}
	return nil
}

// RemoveAll unregisters every command in the set.
func (s *CommandSet) RemoveAll() error {
	var firstErr error
	for _, name := range s.names {
		if err := s.registry.Remove(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.names = nil
	return firstErr
}

// Names returns the registered names.
func (s *CommandSet) Names() []string {
	return append([]string(nil), s.names...)
}
