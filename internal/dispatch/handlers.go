package dispatch

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"guildcore/internal/principal"
	"guildcore/native/governance"
	"guildcore/native/multisig"
	"guildcore/native/roles"
)

var errInvalidAmount = errors.New("dispatch: invalid amount")

func pathUint64(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, name), 10, 64)
}

type createGuildRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateGuild(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	var req createGuildRequest
	if err := decodeBody(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	g, err := s.Guild.CreateGuild(req.Name, req.Description, caller, s.now())
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusCreated, g)
	return nil
}

type addMemberRequest struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

func parseRole(s string) roles.Role {
	switch s {
	case "owner":
		return roles.Owner
	case "admin":
		return roles.Admin
	case "member":
		return roles.Member
	default:
		return roles.Contributor
	}
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	guildID, err := pathUint64(r, "guildID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	var req addMemberRequest
	if err := decodeBody(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	addr, err := principal.Parse(req.Address)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	lock := s.lockFor("guild", chi.URLParam(r, "guildID"))
	lock.Lock()
	defer lock.Unlock()
	if err := s.Guild.AddMember(guildID, addr, parseRole(req.Role), caller, s.now()); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

type createProposalRequest struct {
	GuildID     uint64                  `json:"guild_id"`
	Type        governance.ProposalType `json:"type"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Payload     governance.Payload      `json:"payload"`
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	var req createProposalRequest
	if err := decodeBody(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	lock := s.lockFor("guild", strconv.FormatUint(req.GuildID, 10))
	lock.Lock()
	defer lock.Unlock()
	p, err := s.Governance.CreateProposal(req.GuildID, caller, req.Type, req.Title, req.Description, req.Payload, s.now())
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusCreated, p)
	return nil
}

type voteRequest struct {
	Decision governance.Decision `json:"decision"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	proposalID, err := pathUint64(r, "proposalID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	lock := s.lockFor("proposal", chi.URLParam(r, "proposalID"))
	lock.Lock()
	defer lock.Unlock()
	if err := s.Governance.Vote(proposalID, caller, req.Decision, s.now()); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, _ principal.Principal) error {
	proposalID, err := pathUint64(r, "proposalID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	lock := s.lockFor("proposal", chi.URLParam(r, "proposalID"))
	lock.Lock()
	defer lock.Unlock()
	status, err := s.Governance.FinalizeProposal(proposalID, s.now())
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
	return nil
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	proposalID, err := pathUint64(r, "proposalID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	lock := s.lockFor("proposal", chi.URLParam(r, "proposalID"))
	lock.Lock()
	defer lock.Unlock()
	success, err := s.Governance.ExecuteProposal(proposalID, caller, s.now())
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": success})
	return nil
}

type registerAccountRequest struct {
	Signers   []string `json:"signers"`
	Threshold uint32   `json:"threshold"`
}

func (s *Server) handleRegisterAccount(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	var req registerAccountRequest
	if err := decodeBody(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	signers := make([]principal.Principal, 0, len(req.Signers))
	for _, addr := range req.Signers {
		p, err := principal.Parse(addr)
		if err != nil {
			return writeError(w, http.StatusBadRequest, err)
		}
		signers = append(signers, p)
	}
	a, err := s.Multisig.RegisterAccount(caller, signers, req.Threshold)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusCreated, a)
	return nil
}

func (s *Server) handleSignOperation(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	opID, err := pathUint64(r, "opID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	lock := s.lockFor("operation", chi.URLParam(r, "opID"))
	lock.Lock()
	defer lock.Unlock()
	count, err := s.Multisig.Sign(opID, caller, s.now())
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusOK, map[string]int{"signatures": count})
	return nil
}

func (s *Server) handleExecuteOperation(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	opID, err := pathUint64(r, "opID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	lock := s.lockFor("operation", chi.URLParam(r, "opID"))
	lock.Lock()
	defer lock.Unlock()
	if err := s.Multisig.Execute(opID, caller, s.now()); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(multisig.Executed)})
	return nil
}

type depositRequest struct {
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	guildID, err := pathUint64(r, "guildID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return writeError(w, http.StatusBadRequest, errInvalidAmount)
	}
	lock := s.lockFor("treasury", chi.URLParam(r, "guildID"))
	lock.Lock()
	defer lock.Unlock()
	if err := s.Treasury.Deposit(guildID, caller, amount, req.Token, s.now()); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

type proposeWithdrawalRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Reason    string `json:"reason"`
}

func (s *Server) handleProposeWithdrawal(w http.ResponseWriter, r *http.Request, caller principal.Principal) error {
	guildID, err := pathUint64(r, "guildID")
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	var req proposeWithdrawalRequest
	if err := decodeBody(r, &req); err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	recipient, err := principal.Parse(req.Recipient)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return writeError(w, http.StatusBadRequest, errInvalidAmount)
	}
	lock := s.lockFor("treasury", chi.URLParam(r, "guildID"))
	lock.Lock()
	defer lock.Unlock()
	tx, err := s.Treasury.ProposeWithdrawal(guildID, caller, recipient, amount, req.Token, req.Reason, s.now())
	if err != nil {
		return writeError(w, http.StatusBadRequest, err)
	}
	writeJSON(w, http.StatusCreated, tx)
	return nil
}
