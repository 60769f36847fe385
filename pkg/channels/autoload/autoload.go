// Package autoload registers every built-in channel factory.
package autoload

import (
	_ "pointer/pkg/channels/telegram"
	_ "pointer/pkg/channels/web"
)
