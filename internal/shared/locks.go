package shared

import "fmt"

// PanelLockKey builds the redis key guarding in-flight submissions of a panel.
func PanelLockKey(scope, panelID string) string {
	return fmt.Sprintf("panel:%s:%s:lock", scope, panelID)
}

// PanelStateKey builds the redis key holding the remembered state of a panel.
func PanelStateKey(scope, panelID string) string {
	return fmt.Sprintf("panel:%s:%s:state", scope, panelID)
}
