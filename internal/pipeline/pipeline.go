package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meshstack/coregate/internal/models"
)

// Kind tags the result of a pipeline step.
type Kind int

const (
	// KindContinue means the step finished and the next step runs.
	KindContinue Kind = iota
	// KindDeny aborts the pipeline with an access denied message.
	KindDeny
	// KindRedirect aborts the pipeline and sends the caller elsewhere.
	KindRedirect
)

// Result is the outcome of a single pipeline step.
type Result struct {
	Kind     Kind
	Message  string
	Location string
}

// Continue returns a result that lets the pipeline proceed.
func Continue() Result {
	return Result{Kind: KindContinue}
}

// Deny returns a terminal denial with an explanatory message.
func Deny(message string) Result {
	return Result{Kind: KindDeny, Message: message}
}

// Redirect returns a terminal redirect to the given location.
func Redirect(location string) Result {
	return Result{Kind: KindRedirect, Location: location}
}

// Backend carries the deployment-level access configuration the steps
// consult.
type Backend struct {
	WhitelistedEmails  []string
	WhitelistedDomains []string
	DefaultOrgName     string
}

// Details holds the identity attributes received from the OAuth provider,
// plus state written by earlier steps for later ones.
type Details struct {
	Email            string
	FirstName        string
	LastName         string
	OrganizationUUID *uuid.UUID
}

// State is the mutable context threaded through the pipeline steps.
type State struct {
	Backend       Backend
	Details       Details
	CoreUser      *models.CoreUser
	IsNewCoreUser bool
	IsNewOrg      bool
	Organization  *models.Organization
}

// Step is one stage of the login pipeline. Steps mutate the state and
// return Continue, or a terminal Deny/Redirect that stops the run.
type Step func(ctx context.Context, state *State) (Result, error)

// Runner executes an ordered list of steps, stopping at the first
// non-Continue result or error.
type Runner struct {
	steps []Step
}

// NewRunner creates a pipeline runner over the given steps.
func NewRunner(steps ...Step) *Runner {
	return &Runner{steps: steps}
}

// Run executes the steps in order. The returned result is Continue when
// every step passed, otherwise the terminal result of the aborting step.
func (r *Runner) Run(ctx context.Context, state *State) (Result, error) {
	for _, step := range r.steps {
		result, err := step(ctx, state)
		if err != nil {
			return Result{}, err
		}

		if result.Kind != KindContinue {
			log.Debug().
				Str("email", state.Details.Email).
				Int("kind", int(result.Kind)).
				Msg("Pipeline aborted")
			return result, nil
		}
	}

	return Continue(), nil
}
