// Package oauth contiene los tipos compartidos del motor de protocolo OAuth2/OIDC:
// constantes del wire, requests validados y el modelo de errores.
//
// # Design Decisions
//
//   - Los subpaquetes (scopes, clientauth, authorize, interaction, token, tokens,
//     consent, revocation, introspection) dependen de este paquete; este paquete
//     solo depende de domain/repository.
//   - Los validadores y generadores no guardan estado por request: todo lo que
//     viaja entre pasos está en ValidatedAuthorizeRequest / ValidatedTokenRequest.
//   - Los errores llevan un Kind (ver errors.go) que decide cómo los expone la
//     capa HTTP: redirect con error, página de error localizada o cuerpo RFC.
package oauth
