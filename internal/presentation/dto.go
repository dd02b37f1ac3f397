package presentation

import (
	"time"

	"github.com/zjrosen/ttr/internal/ledger"
	"github.com/zjrosen/ttr/internal/registry"
)

// CaseDTO represents a case record for presentation
type CaseDTO struct {
	Name       string         `json:"name" yaml:"name"`
	Base       string         `json:"base" yaml:"base"`
	Host       string         `json:"host,omitempty" yaml:"host,omitempty"`
	Subtag     string         `json:"subtag,omitempty" yaml:"subtag,omitempty"`
	Extra      []string       `json:"extra,omitempty" yaml:"extra,omitempty"`
	Tasks      []string       `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Modifs     map[string]any `json:"modifs,omitempty" yaml:"modifs,omitempty"`
	Hostname   string         `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	HostDomain string         `json:"host_domain,omitempty" yaml:"host_domain,omitempty"`
	ConfigName string         `json:"config_name,omitempty" yaml:"config_name,omitempty"`
	DomainName string         `json:"domain_name,omitempty" yaml:"domain_name,omitempty"`
}

// ListDTO is the result of listing a definition: every registered case and
// the names selected to run.
type ListDTO struct {
	Tag       string    `json:"tag"`
	Available []CaseDTO `json:"available"`
	Selected  []string  `json:"selected"`
}

// FromCase converts a case record to a DTO.
func FromCase(c *registry.Case) CaseDTO {
	return CaseDTO{
		Name:       c.Name,
		Base:       c.BaseName(),
		Host:       c.Host,
		Subtag:     c.Subtag,
		Extra:      c.Extra,
		Tasks:      c.Tasks,
		Modifs:     c.Modifs,
		Hostname:   c.Hostname,
		HostDomain: c.HostDomain,
		ConfigName: c.ConfigName,
		DomainName: c.DomainName,
	}
}

// FromRegistry builds the listing for reg. An empty selection means every
// case is selected.
func FromRegistry(reg *registry.Registry, tag string, selection []string) ListDTO {
	cases := reg.Cases()
	dto := ListDTO{
		Tag:       tag,
		Available: make([]CaseDTO, 0, len(cases)),
		Selected:  make([]string, 0, len(selection)),
	}
	for _, c := range cases {
		dto.Available = append(dto.Available, FromCase(c))
	}
	if len(selection) == 0 {
		dto.Selected = append(dto.Selected, reg.Names()...)
	} else {
		dto.Selected = append(dto.Selected, selection...)
	}
	return dto
}

// EntryDTO represents a ledger entry for presentation
type EntryDTO struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Tag        string    `json:"tag,omitempty"`
	Case       string    `json:"case,omitempty"`
	Phase      string    `json:"phase"`
	Outcome    string    `json:"outcome"`
	ExitCode   int       `json:"exit_code,omitempty"`
	ConfigName string    `json:"config_name,omitempty"`
	DomainName string    `json:"domain_name,omitempty"`
	Command    []string  `json:"command"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// FromEntries converts ledger entries to DTOs.
func FromEntries(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, EntryDTO{
			ID:         e.ID,
			RunID:      e.RunID,
			Tag:        e.Tag,
			Case:       e.Case,
			Phase:      e.Phase,
			Outcome:    e.Outcome,
			ExitCode:   e.ExitCode,
			ConfigName: e.ConfigName,
			DomainName: e.DomainName,
			Command:    e.Argv,
			Message:    e.Message,
			DurationMs: e.Duration.Milliseconds(),
			CreatedAt:  e.CreatedAt,
		})
	}
	return dtos
}
