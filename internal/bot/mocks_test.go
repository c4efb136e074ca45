package bot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jusunglee/hearth/internal/db"
	"github.com/jusunglee/hearth/internal/notify"
	"github.com/stretchr/testify/mock"
)

// Mock implementations

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	m.Called(ctx, msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	m.Called(ctx, msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	m.Called(ctx, msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) With(args ...any) Logger {
	ret := m.Called(args)
	return ret.Get(0).(Logger)
}

// quietLogger accepts any log call without asserting on it.
func quietLogger() *MockLogger {
	l := new(MockLogger)
	l.On("InfoContext", mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("Info", mock.Anything, mock.Anything).Maybe()
	l.On("WarnContext", mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("Warn", mock.Anything, mock.Anything).Maybe()
	l.On("ErrorContext", mock.Anything, mock.Anything, mock.Anything).Maybe()
	l.On("Error", mock.Anything, mock.Anything).Maybe()
	l.On("With", mock.Anything).Return(l).Maybe()
	return l
}

type MockDiscordSession struct {
	mock.Mock
}

func (m *MockDiscordSession) AddHandler(handler interface{}) func() {
	ret := m.Called(handler)
	return ret.Get(0).(func())
}

func (m *MockDiscordSession) Open() error {
	ret := m.Called()
	return ret.Error(0)
}

func (m *MockDiscordSession) Close() error {
	ret := m.Called()
	return ret.Error(0)
}

func (m *MockDiscordSession) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	ret := m.Called(appID, guildID, commands, options)
	return ret.Get(0).([]*discordgo.ApplicationCommand), ret.Error(1)
}

func (m *MockDiscordSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	ret := m.Called(interaction, resp, options)
	return ret.Error(0)
}

func (m *MockDiscordSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	ret := m.Called(channelID, data, options)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(*discordgo.Message), ret.Error(1)
}

func (m *MockDiscordSession) HeartbeatLatency() time.Duration {
	ret := m.Called()
	return ret.Get(0).(time.Duration)
}

func (m *MockDiscordSession) GetUserID() string {
	ret := m.Called()
	return ret.String(0)
}

func (m *MockDiscordSession) GuildInfo(guildID string) (string, int) {
	ret := m.Called(guildID)
	return ret.String(0), ret.Int(1)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetGuildSettings(ctx context.Context, guildID string) (db.GuildSettings, error) {
	ret := m.Called(ctx, guildID)
	return ret.Get(0).(db.GuildSettings), ret.Error(1)
}

func (m *MockRepository) UpsertGuildSettings(ctx context.Context, arg db.UpsertGuildSettingsParams) (db.GuildSettings, error) {
	ret := m.Called(ctx, arg)
	return ret.Get(0).(db.GuildSettings), ret.Error(1)
}

func (m *MockRepository) DeleteGuildSettings(ctx context.Context, guildID string) (int64, error) {
	ret := m.Called(ctx, guildID)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockRepository) GetPremium(ctx context.Context, guildID string) (db.Premium, error) {
	ret := m.Called(ctx, guildID)
	return ret.Get(0).(db.Premium), ret.Error(1)
}

func (m *MockRepository) UpsertPremium(ctx context.Context, arg db.UpsertPremiumParams) (db.Premium, error) {
	ret := m.Called(ctx, arg)
	return ret.Get(0).(db.Premium), ret.Error(1)
}

func (m *MockRepository) DeletePremium(ctx context.Context, guildID string) (int64, error) {
	ret := m.Called(ctx, guildID)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockRepository) DeleteExpiredPremium(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockRepository) GetWelcomeTemplate(ctx context.Context, guildID string) (db.WelcomeTemplate, error) {
	ret := m.Called(ctx, guildID)
	return ret.Get(0).(db.WelcomeTemplate), ret.Error(1)
}

func (m *MockRepository) UpsertWelcomeTemplate(ctx context.Context, arg db.UpsertWelcomeTemplateParams) (db.WelcomeTemplate, error) {
	ret := m.Called(ctx, arg)
	return ret.Get(0).(db.WelcomeTemplate), ret.Error(1)
}

func (m *MockRepository) SetWelcomeEnabled(ctx context.Context, guildID string, enabled bool) (int64, error) {
	ret := m.Called(ctx, guildID, enabled)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockRepository) Close() error {
	ret := m.Called()
	return ret.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ev notify.Event) error {
	ret := m.Called(ctx, ev)
	return ret.Error(0)
}
