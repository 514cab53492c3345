package auth

import (
	"github.com/gymflow/server/internal/model"
)

var panelNames = map[model.Role]string{
	model.RoleClient:     "cliente",
	model.RoleInstructor: "instrutor",
	model.RoleAdmin:      "administrador",
}

// AuthorizePanel allows masters everywhere and every other role only on its own panel
func AuthorizePanel(role model.Role, panel model.Panel) error {
	if role == model.RoleMaster {
		return nil
	}
	if string(role) == string(panel) {
		return nil
	}
	e := newError(KindPanelAccessDenied, nil)
	if name, ok := panelNames[role]; ok {
		e.Message = "Acesso negado. Esta conta só pode acessar o painel do " + name + "."
	}
	return e
}
