package usecase

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	ingestdomain "mail2md-backend/internal/ingest/domain"
	identityusecase "mail2md-backend/internal/identity/usecase"
	prefsdomain "mail2md-backend/internal/prefs/domain"
	prefsrepo "mail2md-backend/internal/prefs/repository"
	storagedomain "mail2md-backend/internal/storage/domain"
	"mail2md-backend/internal/storage/provider"
	storagerepo "mail2md-backend/internal/storage/repository"
	"mail2md-backend/pkg/emailparse"
	"mail2md-backend/pkg/htmlclean"
	"mail2md-backend/pkg/mailer"
	"mail2md-backend/pkg/markdown"
)

// IngestUsecase converts one inbound email and fans the result out to the
// user's storage destinations.
type IngestUsecase interface {
	ProcessInboundEmail(ctx context.Context, from, subject, htmlBody string) (*ingestdomain.ProcessingSummary, error)
}

// ProviderRouter is the slice of provider.Router the orchestrator needs.
type ProviderRouter interface {
	GetProvider(nameOrType string) (provider.StorageProvider, error)
}

type ingestUsecase struct {
	sanitizer   *htmlclean.Sanitizer
	converter   *markdown.Converter
	identity    identityusecase.IdentityLinkGraph
	connections storagerepo.ConnectionRepository
	router      ProviderRouter
	prefs       prefsrepo.PreferencesRepository
	mailer      mailer.Sender
	logger      zerolog.Logger
	now         func() time.Time
}

func NewIngestUsecase(
	sanitizer *htmlclean.Sanitizer,
	converter *markdown.Converter,
	identity identityusecase.IdentityLinkGraph,
	connections storagerepo.ConnectionRepository,
	router ProviderRouter,
	prefs prefsrepo.PreferencesRepository,
	mailSender mailer.Sender,
	logger zerolog.Logger,
) IngestUsecase {
	return &ingestUsecase{
		sanitizer:   sanitizer,
		converter:   converter,
		identity:    identity,
		connections: connections,
		router:      router,
		prefs:       prefs,
		mailer:      mailSender,
		logger:      logger.With().Str("component", "ingest").Logger(),
		now:         time.Now,
	}
}

func (u *ingestUsecase) ProcessInboundEmail(ctx context.Context, from, subject, htmlBody string) (*ingestdomain.ProcessingSummary, error) {
	forwarderName, forwarderEmail := parseAddress(from)
	if forwarderEmail == "" {
		return nil, fmt.Errorf("inbound email carries no parseable sender address: %q", from)
	}
	subscriber := strings.ToLower(forwarderEmail)

	// Display attribution defaults to the forwarder; a forwarding header in
	// the body overrides it with the original message's sender and date.
	displayName, displayEmail := forwarderName, forwarderEmail
	effectiveDate := u.now()
	cleanSubject := strings.TrimSpace(subject)
	if emailparse.IsForwardedEmail(subject) {
		cleanSubject = emailparse.StripForwardingPrefix(subject)
		if meta := emailparse.ExtractForwardedMetadata(htmlBody); meta != nil {
			if meta.SenderEmail != "" {
				displayEmail = meta.SenderEmail
				displayName = meta.SenderName
			}
			if meta.HasDate {
				effectiveDate = meta.SentDate
			}
		}
	}
	if cleanSubject == "" {
		cleanSubject = "Untitled"
	}
	if displayName == "" {
		displayName = displayEmail
	}

	sanitized := u.sanitizer.Sanitize(htmlBody)
	doc := markdown.ConvertedDocument{
		Content:     u.converter.ConvertToMarkdownBytes(ctx, cleanSubject, displayName, displayEmail, effectiveDate, sanitized),
		FileName:    markdown.GenerateFileName(effectiveDate, displayName, cleanSubject),
		SenderName:  displayName,
		SenderEmail: displayEmail,
		ReceivedAt:  effectiveDate,
	}

	conns, err := u.collectConnections(subscriber)
	if err != nil {
		return nil, err
	}

	outcomes := u.fanOut(ctx, doc, conns)

	var succeeded, failed, needReauth []string
	for _, o := range outcomes {
		switch {
		case o.Success:
			succeeded = append(succeeded, o.Provider)
		case o.RequiresReauth:
			needReauth = append(needReauth, o.Provider)
			failed = append(failed, o.Provider)
		default:
			failed = append(failed, o.Provider)
		}
	}

	method := u.deliveryMethod(subscriber)

	// Failures are never silent: any storage failure forces a notification
	// regardless of the configured delivery method.
	notify := method == prefsdomain.DeliveryMethodEmail || method == prefsdomain.DeliveryMethodBoth || len(failed) > 0
	notificationSent := false
	if notify {
		body := composeNotificationBody(outcomes, needReauth, method)
		mailSubject := "Converted: " + cleanSubject
		if len(failed) > 0 {
			mailSubject = "Delivery problems: " + cleanSubject
		}
		notificationSent = u.mailer.SendWithAttachment(ctx, subscriber, forwarderName, mailSubject, body, doc.FileName, doc.Content)
		if !notificationSent {
			u.logger.Error().Str("to", subscriber).Msg("notification email could not be sent")
		}
	}

	summary := &ingestdomain.ProcessingSummary{
		FileName:            doc.FileName,
		Results:             outcomes,
		NotificationSent:    notificationSent,
		ProvidersNeedReauth: needReauth,
	}
	storageOK := len(outcomes) > 0 && len(failed) == 0
	switch method {
	case prefsdomain.DeliveryMethodStorage:
		summary.Success = storageOK
	case prefsdomain.DeliveryMethodEmail:
		summary.Success = notificationSent
	default: // both: one working channel is enough
		summary.Success = storageOK || notificationSent
	}

	u.logger.Info().
		Str("subscriber", subscriber).
		Str("file", doc.FileName).
		Int("saved", len(succeeded)).
		Int("failed", len(failed)).
		Bool("notified", notificationSent).
		Msg("inbound email processed")
	return summary, nil
}

// collectConnections unions the active connections of every identity in the
// subscriber's group. When two linked identities both registered the same
// provider, the first one seen wins.
func (u *ingestUsecase) collectConnections(subscriber string) ([]storagedomain.StorageConnection, error) {
	group, err := u.identity.ResolveGroup(subscriber)
	if err != nil {
		return nil, err
	}

	var conns []storagedomain.StorageConnection
	seenProvider := map[string]bool{}
	for _, email := range group {
		found, err := u.connections.FindActiveByEmail(email)
		if err != nil {
			return nil, err
		}
		for _, conn := range found {
			if seenProvider[conn.Provider] {
				continue
			}
			seenProvider[conn.Provider] = true
			conns = append(conns, conn)
		}
	}
	return conns, nil
}

// fanOut saves the document to every connection in parallel. Outcomes are
// written to distinct slots, so no locking is needed, and a failing
// provider never stops the others.
func (u *ingestUsecase) fanOut(ctx context.Context, doc markdown.ConvertedDocument, conns []storagedomain.StorageConnection) []storagedomain.DeliveryOutcome {
	outcomes := make([]storagedomain.DeliveryOutcome, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn storagedomain.StorageConnection) {
			defer wg.Done()
			p, err := u.router.GetProvider(conn.Provider)
			if err != nil {
				outcomes[i] = storagedomain.DeliveryOutcome{Provider: conn.Provider, Error: err.Error()}
				return
			}
			outcomes[i] = p.SaveFile(ctx, conn.Email, conn.RootFolder, doc.FileName, doc.Content)
			if outcomes[i].Success {
				if err := u.connections.MarkSynced(conn.Email, conn.Provider, u.now()); err != nil {
					u.logger.Warn().Err(err).Str("provider", conn.Provider).Msg("failed to record sync timestamp")
				}
			}
		}(i, conn)
	}
	wg.Wait()
	return outcomes
}

func (u *ingestUsecase) deliveryMethod(subscriber string) string {
	prefs, err := u.prefs.FindByEmail(subscriber)
	if err != nil {
		u.logger.Warn().Err(err).Msg("failed to load preferences, defaulting delivery method")
		return prefsdomain.DeliveryMethodBoth
	}
	if prefs == nil || prefs.DeliveryMethod == "" {
		return prefsdomain.DeliveryMethodBoth
	}
	return prefs.DeliveryMethod
}

// composeNotificationBody writes the user-facing status message. Failures
// come first with their errors, then the providers that did succeed, then a
// call to action for every provider that needs re-authorization.
func composeNotificationBody(outcomes []storagedomain.DeliveryOutcome, needReauth []string, method string) string {
	var succeeded, failed []storagedomain.DeliveryOutcome
	for _, o := range outcomes {
		if o.Success {
			succeeded = append(succeeded, o)
		} else {
			failed = append(failed, o)
		}
	}

	var sb strings.Builder
	if len(failed) > 0 {
		sb.WriteString("Some of your storage destinations could not be reached:\n\n")
		for _, o := range failed {
			sb.WriteString(fmt.Sprintf("  - %s: %s", o.Provider, o.Error))
			if o.RequiresReauth {
				sb.WriteString(" (re-authorization required)")
			}
			sb.WriteString("\n")
		}
		if len(succeeded) > 0 {
			sb.WriteString("\nThe document was still saved to:\n\n")
			for _, o := range succeeded {
				sb.WriteString(fmt.Sprintf("  - %s (%s)\n", o.Provider, o.FilePath))
			}
		}
		if len(needReauth) > 0 {
			sb.WriteString(fmt.Sprintf("\nPlease re-authorize %s to resume automatic saving. Your converted email is attached so nothing is lost.\n",
				strings.Join(needReauth, ", ")))
		} else {
			sb.WriteString("\nYour converted email is attached so nothing is lost.\n")
		}
		return sb.String()
	}

	if method == prefsdomain.DeliveryMethodBoth && len(succeeded) > 0 {
		names := make([]string, len(succeeded))
		for i, o := range succeeded {
			names[i] = o.Provider
		}
		return fmt.Sprintf("Your email was converted and saved to %s. A copy is attached.\n", strings.Join(names, ", "))
	}
	return "Your email was converted to Markdown and is attached.\n"
}

// parseAddress accepts "Name <email>" or a bare address.
func parseAddress(from string) (name, email string) {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Name, addr.Address
	}
	trimmed := strings.TrimSpace(from)
	if strings.Contains(trimmed, "@") {
		return "", trimmed
	}
	return trimmed, ""
}
