package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/reportgen/internal/a2a"
	"github.com/dusk-indust/reportgen/internal/generator"
	"github.com/dusk-indust/reportgen/internal/logger"
)

// SkillGenerateSection is the id of the section agent's only skill.
const SkillGenerateSection = "generate-section"

// ErrNoSectionTask is returned for messages without a structured section task.
var ErrNoSectionTask = errors.New("agent: message carries no section task")

// SectionCard describes the section agent.
func SectionCard(version, url string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:        "reportgen-section-agent",
		Description: "Generates the content of one report section from subject data and completed dependency sections.",
		Version:     version,
		URL:         url,
		Skills: []a2a.AgentSkill{
			{
				ID:          SkillGenerateSection,
				Name:        "Generate section",
				Description: "Writes one report section as markdown.",
				Tags:        []string{"report", "section"},
			},
		},
		DefaultInputModes:  []string{"application/json", "text/plain"},
		DefaultOutputModes: []string{"text/markdown"},
	}
}

// NewSectionAgent returns an agent that decodes a generator.SectionTask from
// each message and answers with gen's content as a markdown artifact.
func NewSectionAgent(card a2a.AgentCard, gen generator.Generator, log *logger.Logger, opts ...Option) *BaseAgent {
	process := func(ctx context.Context, task *a2a.Task, msg a2a.Message) ([]a2a.Artifact, error) {
		var st generator.SectionTask
		ok, err := msg.Data(&st)
		if err != nil {
			return nil, fmt.Errorf("agent: decode section task: %w", err)
		}
		if !ok {
			return nil, ErrNoSectionTask
		}
		if st.SectionID <= 0 || st.Name == "" {
			return nil, fmt.Errorf("agent: section task needs an id and a name")
		}

		content, err := gen.Generate(ctx, st.Request())
		if err != nil {
			return nil, err
		}
		return []a2a.Artifact{{
			ArtifactID: task.ID + "-" + st.Name,
			Name:       st.Name,
			Parts:      []a2a.Part{a2a.MarkdownPart(content)},
		}}, nil
	}
	return NewBaseAgent(card, process, append([]Option{WithLogger(log)}, opts...)...)
}
