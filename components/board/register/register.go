// Package register registers all relevant Boards
package register

import (
	// for boards.
	_ "github.com/sonarbot/rover/components/board/fake"
	_ "github.com/sonarbot/rover/components/board/periph"
)
