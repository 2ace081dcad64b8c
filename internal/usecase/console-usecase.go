package usecase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/onellm/onechat/internal/model"
	"github.com/sourcegraph/conc"
)

const (
	MessageWelcome         = "Welcome to onechat. Write something to start a conversation, /help for commands."
	MessageHelp            = "Commands: /new, /chats, /open <n>, /delete <n>, /models, /model <id>, /stream on|off, /search on|off, /key <provider> <key>, /url <provider> <url>, /ocr <path>, /quit"
	MessageCommandUnknown  = "I don't know that command"
	MessageGenerating      = "Still generating, wait for the current answer"
	MessageNoConversations = "You have no conversations yet"
	MessageNewChatFormat   = "Started new chat %s"
	MessageSelectedFormat  = "Selected model %s"
	MessageKeyHintFormat   = "Usage: /key %s <key>, keys look like %s"
	MessageOCRFormat       = "Extracted %d characters from %s, they will be attached to your next message"

	CommandHelp   = "help"
	CommandNew    = "new"
	CommandChats  = "chats"
	CommandOpen   = "open"
	CommandDelete = "delete"
	CommandModels = "models"
	CommandModel  = "model"
	CommandStream = "stream"
	CommandSearch = "search"
	CommandKey    = "key"
	CommandURL    = "url"
	CommandOCR    = "ocr"
	CommandQuit   = "quit"
)

type ConsoleUsecaseDeps struct {
	Chat     *ChatUsecase
	Registry *RegistryUsecase
	OCR      *OCRUsecase
}

// ConsoleUsecase drives the chat from an interactive terminal: plain lines
// are sent as messages, slash-prefixed lines are commands.
type ConsoleUsecase struct {
	ConsoleUsecaseDeps
	in  io.Reader
	out io.Writer

	// pendingOCRText is appended to the next sent message, mirroring an
	// image attachment whose text was extracted up front.
	pendingOCRText string
}

func NewConsoleUsecase(deps ConsoleUsecaseDeps) *ConsoleUsecase {
	return &ConsoleUsecase{
		ConsoleUsecaseDeps: deps,
		in:                 os.Stdin,
		out:                os.Stdout,
	}
}

func (u *ConsoleUsecase) Run(ctx context.Context) error {
	u.println(MessageWelcome)

	scanner := bufio.NewScanner(u.in)
	for {
		fmt.Fprint(u.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit := u.handleCommand(ctx, line)
			if quit {
				break
			}
			continue
		}
		u.handleMessage(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	u.Chat.WaitSyncs()
	return nil
}

func (u *ConsoleUsecase) handleCommand(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	command := fields[0]
	args := fields[1:]

	switch command {
	case CommandHelp:
		u.println(MessageHelp)
	case CommandQuit:
		return true
	case CommandNew:
		convo, err := u.Chat.NewChat(ctx)
		if err != nil {
			u.printErr(err)
			return false
		}
		u.println(fmt.Sprintf(MessageNewChatFormat, convo.ID))
	case CommandChats:
		u.printChats()
	case CommandOpen:
		u.withChatNumber(
			args, func(at int) {
				u.Chat.SetActiveConversation(u.Chat.ConversationList()[at].ID)
			},
		)
	case CommandDelete:
		u.withChatNumber(
			args, func(at int) {
				if err := u.Chat.DeleteConversation(ctx, u.Chat.ConversationList()[at].ID); err != nil {
					u.printErr(err)
				}
			},
		)
	case CommandModels:
		settings := u.Chat.SettingsSnapshot()
		for _, m := range u.Registry.FetchAllModels(ctx, settings.APIKeys) {
			marker := " "
			if m.ID == settings.SelectedModel {
				marker = "*"
			}
			u.println(fmt.Sprintf("%s %s (%s) %s", marker, m.ID, m.Name, m.Description))
		}
	case CommandModel:
		if len(args) == 0 {
			u.println(MessageHelp)
			return false
		}
		if err := u.Chat.SetSelectedModel(ctx, args[0]); err != nil {
			u.printErr(err)
			return false
		}
		u.println(fmt.Sprintf(MessageSelectedFormat, args[0]))
	case CommandStream:
		u.setToggle(ctx, args, u.Chat.SetStreamOutput)
	case CommandSearch:
		u.setToggle(ctx, args, u.Chat.SetSearchEnabled)
	case CommandKey:
		if len(args) == 1 {
			if provider, ok := model.Providers[args[0]]; ok && provider.KeyPlaceholder != "" {
				u.println(fmt.Sprintf(MessageKeyHintFormat, args[0], provider.KeyPlaceholder))
				return false
			}
		}
		if len(args) < 2 {
			u.println(MessageHelp)
			return false
		}
		if err := u.Chat.UpdateAPIKey(ctx, args[0], args[1]); err != nil {
			u.printErr(err)
		}
	case CommandURL:
		if len(args) < 2 {
			u.println(MessageHelp)
			return false
		}
		if err := u.Chat.UpdateBaseURL(ctx, args[0], args[1]); err != nil {
			u.printErr(err)
		}
	case CommandOCR:
		if len(args) == 0 {
			u.println(MessageHelp)
			return false
		}
		u.runOCR(ctx, args[0])
	default:
		u.println(MessageCommandUnknown)
	}
	return false
}

func (u *ConsoleUsecase) handleMessage(ctx context.Context, text string) {
	if u.Chat.Generating() {
		u.println(MessageGenerating)
		return
	}
	if u.pendingOCRText != "" {
		text = text + "\n\n[Image text]\n" + u.pendingOCRText
		u.pendingOCRText = ""
	}

	answerChan := make(chan string)

	wg := conc.NewWaitGroup()
	wg.Go(
		func() {
			if err := u.Chat.Send(ctx, text, answerChan); err != nil {
				log.Printf("failed to send message: %v", err)
			}
		},
	)
	wg.Go(
		func() {
			// The channel carries cumulative content; print only what is new.
			printed := 0
			for answer := range answerChan {
				if len(answer) > printed {
					fmt.Fprint(u.out, answer[printed:])
					printed = len(answer)
				}
			}
			fmt.Fprintln(u.out)
		},
	)
	wg.Wait()

	if err := u.Chat.Err(); err != nil {
		u.printErr(err)
		u.Chat.ClearErr()
	}
}

func (u *ConsoleUsecase) runOCR(ctx context.Context, path string) {
	file, err := os.Open(path)
	if err != nil {
		u.printErr(err)
		return
	}
	defer file.Close()
	text, err := u.OCR.ExtractText(ctx, file.Name(), file)
	if err != nil {
		u.printErr(err)
		return
	}
	u.pendingOCRText = text
	u.println(fmt.Sprintf(MessageOCRFormat, len(text), path))
}

func (u *ConsoleUsecase) printChats() {
	conversations := u.Chat.ConversationList()
	if len(conversations) == 0 {
		u.println(MessageNoConversations)
		return
	}
	active, hasActive := u.Chat.ActiveConversation()
	for i, convo := range conversations {
		marker := " "
		if hasActive && convo.ID == active.ID {
			marker = "*"
		}
		u.println(fmt.Sprintf("%s %d) %s (%d messages)", marker, i+1, convo.Title, len(convo.Messages)))
	}
}

func (u *ConsoleUsecase) withChatNumber(args []string, apply func(at int)) {
	if len(args) == 0 {
		u.println(MessageHelp)
		return
	}
	number, err := strconv.Atoi(args[0])
	if err != nil || number < 1 || number > len(u.Chat.ConversationList()) {
		u.println(MessageNoConversations)
		return
	}
	apply(number - 1)
}

func (u *ConsoleUsecase) setToggle(ctx context.Context, args []string, set func(context.Context, bool) error) {
	if len(args) == 0 {
		u.println(MessageHelp)
		return
	}
	if err := set(ctx, args[0] == "on"); err != nil {
		u.printErr(err)
	}
}

func (u *ConsoleUsecase) println(text string) {
	fmt.Fprintln(u.out, text)
}

func (u *ConsoleUsecase) printErr(err error) {
	fmt.Fprintf(u.out, "Error: %v\n", err)
}
