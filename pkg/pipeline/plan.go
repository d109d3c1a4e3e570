package pipeline

type stage struct {
	name   string
	attach func(ch *Channel) error
}

// Plan is the ordered list of stages for one connection.
type Plan []stage

// Names returns the stage names in order.
func (p Plan) Names() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.name
	}
	return names
}

// Realize attaches every stage to ch in order, stopping at the first
// failure.
func (p Plan) Realize(ch *Channel) error {
	for _, s := range p {
		if err := s.attach(ch); err != nil {
			return &PipelineAssemblyError{Stage: s.name, Err: err}
		}
		ch.stages = append(ch.stages, s.name)
	}
	return nil
}
