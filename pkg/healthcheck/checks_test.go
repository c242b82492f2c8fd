// Package healthcheck содержит unit тесты проверок готовности.
package healthcheck

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComposite_FirstError проверяет, что составная проверка
// возвращает первую ошибку и не вызывает последующие проверки.
func TestComposite_FirstError(t *testing.T) {
	errDown := errors.New("mysql недоступен")
	called := false

	check := Composite(
		func(ctx context.Context) error { return errDown },
		func(ctx context.Context) error { called = true; return nil },
	)

	assert.ErrorIs(t, check(context.Background()), errDown)
	assert.False(t, called, "после ошибки остальные проверки не выполняются")
}

// TestComposite_AllOK проверяет успешный проход всех проверок.
func TestComposite_AllOK(t *testing.T) {
	check := Composite(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return nil },
	)
	assert.NoError(t, check(context.Background()))
}

// TestCheckKafka проверяет, что достаточно одного доступного брокера.
func TestCheckKafka(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	// Первый брокер из списка недоступен, второй отвечает
	err = CheckKafka(context.Background(), []string{"127.0.0.1:1", ln.Addr().String()})
	assert.NoError(t, err)
}

// TestCheckKafka_AllDown проверяет ошибку при недоступности всех брокеров.
func TestCheckKafka_AllDown(t *testing.T) {
	err := CheckKafka(context.Background(), []string{"127.0.0.1:1"})
	assert.Error(t, err)
}
