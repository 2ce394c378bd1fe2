package goverflow

// Command represents a discrete application operation with its specific
// options. Commands are produced by Parse and routed by Main to the
// matching method on App.
type Command interface {
	// Name returns the CLI sub-command this command was parsed from.
	Name() string
}

// RunCommand starts the HTTP server.
type RunCommand struct{}

func (*RunCommand) Name() string { return "run" }

// ResyncCommand rebuilds the graph projection from the primary store and
// exits. The same replay is reachable at runtime through the admin API;
// the command form exists for operators and deploy scripts.
type ResyncCommand struct{}

func (*ResyncCommand) Name() string { return "resync" }
