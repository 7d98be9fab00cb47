package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/habiliai/agentmarket/agent"
	"github.com/habiliai/agentmarket/chat"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/ledger"
	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
)

// requestTypes lists the payloads whose JSON schema is published under
// /api/schema/{name}.
var requestTypes = map[string]any{
	"createAgent":       &agent.CreateAgentRequest{},
	"updateAgentStatus": &updateAgentStatusRequest{},
	"marketplaceQuery":  &agent.MarketplaceQuery{},
	"createTransaction": &ledger.CreateTransactionRequest{},
	"sendMessage":       &chat.SendMessageRequest{},
}

func SchemaNames() []string {
	return lo.Keys(requestTypes)
}

func (s *server) schema(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	v, ok := requestTypes[name]
	if !ok {
		s.writeError(w, r, errors.Wrapf(errors.ErrNotFound, "no schema named %q", name))
		return
	}

	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	s.writeJSON(w, http.StatusOK, reflector.Reflect(v))
}
