package executor

import (
	"context"
	"fmt"

	"github.com/shaiso/conveyr/internal/domain"
	"github.com/shaiso/conveyr/internal/image"
)

// publishPreflight проверяет учётные данные registry до любого сетевого
// вызова publish-stage и возвращает производные команды публикации.
//
// Порядок:
//  1. Обе учётные записи должны быть резолвлены и непусты.
//  2. docker login (пароль через stdin); отклонённый login —
//     тоже ErrAuthentication, а не обычное падение команды.
//
// Только после успешного preflight stage получает право выполнять
// команды, делающие сетевые вызовы.
func (e *Engine) publishPreflight(ctx context.Context, stage *domain.Stage, resolved map[string]string, workDir, repository string, env []string) ([]string, error) {
	creds := image.Credentials{
		Username: resolved[image.SecretRegistryUser],
		Token:    resolved[image.SecretRegistryToken],
	}

	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	res, err := e.runner.Run(ctx, CommandSpec{
		Command:     image.LoginCommand(creds.Username),
		Dir:         workDir,
		Env:         env,
		Stdin:       creds.Token,
		GracePeriod: e.grace,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: login: %v", ErrAuthentication, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: registry rejected credentials", ErrAuthentication)
	}

	e.logger.Debug("registry preflight passed", "stage", stage.Name)

	artifact, err := image.Ref(repository, image.TagLatest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvironmentSetup, err)
	}

	return image.PublishCommands(artifact, e.context), nil
}
