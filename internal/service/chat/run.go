package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/capabilities"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/config"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain"
	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/repositories"
	chatRepo "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/repositories/chat"
	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/tools"
)

// Service implements the RunService interface. It owns the durable
// side of a run: rows, parts, the event log, and the reconnect
// protocol. The loop it spawns is the run's single writer; everything
// a client ever receives has already been appended to the run's log.
type Service struct {
	chatRepo     chatRepo.ChatRepository
	messageRepo  chatRepo.MessageRepository
	runRepo      chatRepo.RunRepository
	txManager    repositories.TransactionManager
	caps         *capabilities.Registry
	toolRegistry *tools.Registry
	loop         *Loop
	registry     *RunRegistry
	config       *config.Config
	logger       *slog.Logger
}

// NewService creates a new run service
func NewService(
	chatRepository chatRepo.ChatRepository,
	messageRepository chatRepo.MessageRepository,
	runRepository chatRepo.RunRepository,
	txManager repositories.TransactionManager,
	caps *capabilities.Registry,
	toolRegistry *tools.Registry,
	loop *Loop,
	registry *RunRegistry,
	cfg *config.Config,
	logger *slog.Logger,
) domainchat.RunService {
	return &Service{
		chatRepo:     chatRepository,
		messageRepo:  messageRepository,
		runRepo:      runRepository,
		txManager:    txManager,
		caps:         caps,
		toolRegistry: toolRegistry,
		loop:         loop,
		registry:     registry,
		config:       cfg,
		logger:       logger,
	}
}

// CreateChat creates a new chat session for the user
func (s *Service) CreateChat(ctx context.Context, userID, title string) (*chatModels.Chat, error) {
	if err := validation.Validate(title, validation.Required, validation.Length(1, 200)); err != nil {
		return nil, fmt.Errorf("%w: title: %v", domain.ErrValidation, err)
	}

	chat := &chatModels.Chat{
		ID:     uuid.New().String(),
		UserID: userID,
		Title:  title,
	}
	if err := s.chatRepo.CreateChat(ctx, chat); err != nil {
		return nil, err
	}

	s.logger.Info("chat created", "chat_id", chat.ID, "user_id", userID)
	return chat, nil
}

// GetChatMessages returns the chat's history. If the latest assistant
// message is an interrupted-run placeholder, its run id is surfaced so
// the client can reconnect.
func (s *Service) GetChatMessages(ctx context.Context, chatID, userID string) (*domainchat.ChatHistory, error) {
	if err := s.verifyChatAccess(ctx, chatID, userID); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.GetChatMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	history := &domainchat.ChatHistory{Messages: messages}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsInterruptedPlaceholder() {
			run, err := s.runRepo.GetRun(ctx, *messages[i].RunID)
			if err != nil {
				return nil, err
			}
			if !run.Complete {
				history.ActiveRunID = messages[i].RunID
			}
			break
		}
	}

	return history, nil
}

// StartRun persists the user message, allocates the run and its empty
// assistant placeholder atomically, then starts the tool loop in the
// background. The returned stream replays from index 0; the caller is
// never blocked on run completion.
func (s *Service) StartRun(ctx context.Context, req *domainchat.StartRunRequest) (*domainchat.StartRunResponse, error) {
	if err := validateStartRun(req); err != nil {
		return nil, err
	}
	if err := s.verifyChatAccess(ctx, req.ChatID, req.UserID); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = s.config.DefaultModel
	}
	provider, caps, err := s.caps.ResolveModel(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	cfg := &StepConfig{
		Provider:  provider,
		Model:     model,
		System:    s.config.SystemPrompt,
		ToolNames: s.boundTools(caps),
		MaxTokens: s.config.DefaultMaxTokens,
		MaxSteps:  s.config.MaxSteps,
	}

	// History snapshot before this turn's rows exist.
	prior, err := s.messageRepo.GetChatMessages(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	userMessage := &chatModels.Message{
		ID:        uuid.New().String(),
		ChatID:    req.ChatID,
		Role:      chatModels.RoleUser,
		CreatedAt: now,
	}
	userPart := chatModels.Part{
		ID:    uuid.New().String(),
		Ord:   0,
		Type:  chatModels.PartTypeText,
		State: chatModels.PartStateDone,
		Text:  req.Message,
	}

	run := &chatModels.Run{
		ID:        uuid.New().String(),
		ChatID:    req.ChatID,
		CreatedAt: now,
	}

	// The placeholder is created with zero parts. An assistant message
	// with a run id and no parts is the durable marker of a run that
	// has not yet attached content; history conversion skips it.
	placeholder := &chatModels.Message{
		ID:        uuid.New().String(),
		ChatID:    req.ChatID,
		RunID:     &run.ID,
		Role:      chatModels.RoleAssistant,
		CreatedAt: now.Add(time.Millisecond),
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.messageRepo.CreateMessage(txCtx, userMessage); err != nil {
			return err
		}
		if err := s.messageRepo.CreateParts(txCtx, userMessage.ID, []chatModels.Part{userPart}); err != nil {
			return err
		}
		if err := s.runRepo.CreateRun(txCtx, run); err != nil {
			return err
		}
		return s.messageRepo.CreateMessage(txCtx, placeholder)
	})
	if err != nil {
		return nil, err
	}
	userMessage.Parts = []chatModels.Part{userPart}

	log := NewLog(run.ID, func(ctx context.Context, index int, chunk chatModels.Chunk) error {
		return s.runRepo.AppendEvent(ctx, run.ID, index, chunk)
	})

	// Register before returning so a reconnect racing the response
	// always finds the log.
	if !s.registry.Register(run.ID, log) {
		return nil, fmt.Errorf("run %s: %w", run.ID, domain.ErrConflict)
	}

	base := MessagesToProviderMessages(prior)
	base = append(base, domainchat.ProviderMessage{
		Role: chatModels.RoleUser,
		Blocks: []domainchat.ProviderBlock{
			{Type: domainchat.BlockText, Text: req.Message},
		},
	})

	s.logger.Info("run started",
		"run_id", run.ID,
		"chat_id", req.ChatID,
		"model", model,
		"provider", provider,
		"tools", len(cfg.ToolNames),
	)

	// Detached from the request context: a client disconnect must not
	// cancel the run.
	go s.executeRun(context.Background(), run.ID, placeholder.ID, cfg, base, log)

	return &domainchat.StartRunResponse{
		Run:         run,
		UserMessage: userMessage,
		Stream:      log.Subscribe(ctx, 0),
	}, nil
}

// executeRun drives the tool loop to completion. It is the run's only
// writer: chunks go to the log (durable append first), parts land on
// the placeholder message after each step, and the run row is marked
// complete at the end.
func (s *Service) executeRun(
	ctx context.Context,
	runID, messageID string,
	cfg *StepConfig,
	base []domainchat.ProviderMessage,
	log *Log,
) {
	defer log.Close()

	onStepFinish := func(ctx context.Context, step int, parts []chatModels.Part) error {
		for i := range parts {
			parts[i].ID = uuid.New().String()
			parts[i].MessageID = messageID
		}
		return s.messageRepo.CreateParts(ctx, messageID, parts)
	}

	result, err := s.loop.Run(ctx, cfg, base, log, onStepFinish)
	if err != nil {
		s.logger.Error("run failed", "run_id", runID, "error", err)
		errChunk := chatModels.Chunk{
			Type:  chatModels.ChunkTypeError,
			Error: err.Error(),
		}
		if writeErr := log.Write(ctx, errChunk); writeErr != nil {
			s.logger.Error("failed to append error chunk", "run_id", runID, "error", writeErr)
		}
		return
	}

	if err := s.runRepo.MarkComplete(ctx, runID, messageID); err != nil {
		s.logger.Error("failed to mark run complete", "run_id", runID, "error", err)
		return
	}

	s.logger.Info("run complete",
		"run_id", runID,
		"steps", result.Steps,
		"stop_reason", result.StopReason,
		"parts", len(result.Parts),
	)
}

// Resume re-attaches to a run's event log at startIndex. Live runs are
// served from the in-memory log (replay then follow); completed or
// evicted runs are served from the database.
func (s *Service) Resume(ctx context.Context, runID string, startIndex int) (<-chan chatModels.Chunk, error) {
	if startIndex < 0 {
		return nil, fmt.Errorf("%w: start index must not be negative", domain.ErrValidation)
	}

	if log := s.registry.Get(runID); log != nil {
		return log.Subscribe(ctx, startIndex), nil
	}

	// Not live: the run must exist durably or the id is unknown.
	if _, err := s.runRepo.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	chunks, err := s.runRepo.ListEvents(ctx, runID, startIndex)
	if err != nil {
		return nil, err
	}

	out := make(chan chatModels.Chunk)
	go func() {
		defer close(out)
		for _, chunk := range chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// boundTools filters the registered tools down to what the model's
// capability entry allows, in stable order.
func (s *Service) boundTools(caps *capabilities.ModelCapabilities) []string {
	names := s.toolRegistry.Names()
	sort.Strings(names)

	var bound []string
	for _, name := range names {
		if caps.ToolAllowed(name) {
			bound = append(bound, name)
		}
	}
	return bound
}

// verifyChatAccess checks the chat exists and belongs to the user.
// Non-owned chats are reported as not found.
func (s *Service) verifyChatAccess(ctx context.Context, chatID, userID string) error {
	owned, err := s.chatRepo.VerifyOwnership(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	return nil
}

func validateStartRun(req *domainchat.StartRunRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.ChatID, validation.Required),
		validation.Field(&req.Message, validation.Required, validation.Length(1, 32000)),
		validation.Field(&req.Model, validation.Length(0, 200)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
