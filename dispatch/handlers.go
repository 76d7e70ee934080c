package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pairkit/server/logger"
	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/pairing"
	"github.com/pairkit/server/session"
	"github.com/sourcegraph/jsonrpc2"
)

// handleProposal negotiates, approves on the wire and only then stores the
// session, so no caller ever sees a half-approved session. The session
// topic's queue is held until then, so a request the wallet sends right
// after the approval finds the session.
func (d *Dispatcher) handleProposal(e ProposalReceived) error {
	log := slog.With("pairingTopic", e.PairingTopic, "proposalId", e.ID)

	approved, err := namespace.Negotiate(e.Proposal, d.supported())
	if err != nil {
		log.Info("proposal rejected", "error", err)
		return d.reject(e, negotiationReason(err), err)
	}

	key, err := d.sessionKey(e.Proposer.PublicKey)
	if err != nil {
		log.Info("proposal rejected", "error", err)
		return d.reject(e, Reason{Code: CodeUserRejected, Message: "invalid proposer key"}, err)
	}

	now := d.now()
	relay := namespace.Relay{Protocol: pairing.DefaultRelayProtocol}
	if len(e.Proposal.Relays) > 0 {
		relay = e.Proposal.Relays[0]
	}
	approval := Approval{
		ProposalID:         e.ID,
		PairingTopic:       e.PairingTopic,
		SessionTopic:       key.Topic,
		ResponderPublicKey: key.PublicKey,
		Namespaces:         approved,
		Relay:              relay,
		Expiry:             now.Add(d.sessionTTL),
	}

	release := d.hold(key.Topic)
	defer release()

	ctx, cancel := d.callContext()
	defer cancel()
	if err := d.responder.Approve(ctx, approval); err != nil {
		log.Error("failed to send approval", "error", err)
		return d.reject(e, Reason{Code: CodeUserRejected, Message: "approval failed"},
			fmt.Errorf("approve proposal %d: %w", e.ID, err))
	}

	sess := session.Session{
		Topic:        key.Topic,
		PairingTopic: e.PairingTopic,
		Namespaces:   approved,
		State:        session.StateActive,
		Peer:         e.Proposer,
		CreatedAt:    now,
		Expiry:       approval.Expiry,
	}
	if err := d.registry.Put(sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	log.Info("session approved", "topic", key.Topic, "namespaces", approved.Keys())
	return nil
}

// sessionKey derives the session key from the proposer's public key. A
// proposer without one gets a random opaque topic.
func (d *Dispatcher) sessionKey(peerPublicKey string) (pairing.SessionKey, error) {
	if peerPublicKey == "" {
		return pairing.NewOpaqueSessionKey(d.rand)
	}
	return pairing.NewSessionKey(peerPublicKey, d.rand)
}

func (d *Dispatcher) reject(e ProposalReceived, reason Reason, cause error) error {
	ctx, cancel := d.callContext()
	defer cancel()
	if err := d.responder.Reject(ctx, e.PairingTopic, e.ID, reason); err != nil {
		slog.Error("failed to send rejection", "pairingTopic", e.PairingTopic, "error", err)
		return errors.Join(cause, err)
	}
	return cause
}

// handleSigningRequest always emits exactly one response for the request.
func (d *Dispatcher) handleSigningRequest(e SigningRequestReceived) error {
	log := slog.With("topic", e.Topic, "requestId", e.ID, "method", e.Method)

	var resp Response
	sess, err := d.registry.Get(e.Topic)
	switch {
	case err != nil:
		log.Info("request for unknown session")
		resp = errorResponse(e.ID, CodeNoMatchingSession, "no matching session")
	case !sess.Namespaces.AllowsMethod(e.ChainID, e.Method):
		log.Info("request for unapproved method", "chainId", e.ChainID)
		resp = errorResponse(e.ID, CodeUnsupportedMethods, "unsupported method")
	default:
		resp = d.sign(sess, e)
	}

	ctx, cancel := d.callContext()
	defer cancel()
	if err := d.responder.Respond(ctx, e.Topic, resp); err != nil {
		log.Error("failed to send response", "error", err)
		return fmt.Errorf("respond to request %d: %w", e.ID, err)
	}
	return nil
}

// sign turns whatever the signer does (result, error, timeout, panic) into
// a response.
func (d *Dispatcher) sign(sess session.Session, e SigningRequestReceived) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "signer panicked", "topic", e.Topic, "requestId", e.ID)
			resp = errorResponse(e.ID, jsonrpc2.CodeInternalError, "internal error")
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.signTimeout)
	defer cancel()

	result, err := d.signer.Sign(ctx, sess, e)
	if err == nil {
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		return Response{ID: e.ID, Result: result}
	}

	var signErr *SignError
	switch {
	case errors.As(err, &signErr):
		return errorResponse(e.ID, signErr.Code, signErr.Message)
	case errors.Is(err, ErrUserRejected):
		return errorResponse(e.ID, CodeUserRejected, "user rejected")
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse(e.ID, CodeRequestExpired, "request expired")
	default:
		slog.Warn("signer failed", "topic", e.Topic, "requestId", e.ID, "error", err)
		return errorResponse(e.ID, jsonrpc2.CodeInternalError, "internal error")
	}
}

func (d *Dispatcher) handleDeleted(e SessionDeleted) error {
	if _, ok := d.registry.Remove(e.Topic); ok {
		slog.Info("session deleted by peer", "topic", e.Topic, "reason", e.Reason.Message)
	}
	return nil
}

// handleUpdated binds disclosed accounts to the session. Chains, methods and
// events stay as approved.
func (d *Dispatcher) handleUpdated(e SessionUpdated) error {
	sess, err := d.registry.Get(e.Topic)
	if err != nil {
		return err
	}

	for key, update := range e.Namespaces {
		ns, ok := sess.Namespaces[key]
		if !ok {
			return fmt.Errorf("namespace %s was not approved", key)
		}
		accounts := make([]string, 0, len(update.Accounts))
		for _, raw := range update.Accounts {
			acc, err := namespace.ParseAccount(raw)
			if err != nil {
				return err
			}
			if acc.Namespace != key || !slices.Contains(ns.Chains, acc.ChainID()) {
				return fmt.Errorf("%w: %s is not on an approved chain", namespace.ErrInvalidAccount, raw)
			}
			if !slices.Contains(accounts, acc.String()) {
				accounts = append(accounts, acc.String())
			}
		}
		ns.Accounts = accounts
		sess.Namespaces[key] = ns
	}

	if err := d.registry.Put(sess); err != nil {
		return err
	}
	slog.Info("session accounts updated", "topic", e.Topic, "accounts", len(sess.Accounts()))
	return nil
}

// handleClose tells the peer and removes the session whatever the peer
// call returned.
func (d *Dispatcher) handleClose(e CloseRequested) error {
	ctx, cancel := d.callContext()
	defer cancel()

	err := d.responder.Disconnect(ctx, e.Topic, e.Reason)
	if _, ok := d.registry.Remove(e.Topic); ok {
		slog.Info("session closed", "topic", e.Topic, "reason", e.Reason.Message)
	}
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", e.Topic, err)
	}
	return nil
}
