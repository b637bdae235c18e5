// Package repository define las entidades y contratos de almacenamiento del
// proveedor OAuth2/OIDC.
//
// Estas interfaces son independientes del backend. Las implementaciones viven en
// internal/store/{memory,redis,pg} y el catálogo de clientes/scopes en
// internal/store/catalog.
//
// Arquitectura:
//
//	┌──────────────────────────────────────────────────────┐
//	│   oauth/{authorize,token,tokens,revocation,...}      │
//	└──────────────────────────────────────────────────────┘
//	                         │
//	                         ▼
//	┌──────────────────────────────────────────────────────┐
//	│       domain/repository (entidades + contratos)      │
//	│  ClientStore, ScopeStore, GrantStore[T], ConsentStore│
//	└──────────────────────────────────────────────────────┘
//	                         │
//	        ┌────────────────┼────────────────┐
//	        ▼                ▼                ▼
//	┌─────────────┐   ┌─────────────┐   ┌─────────────┐
//	│   memory    │   │    redis    │   │     pg      │
//	└─────────────┘   └─────────────┘   └─────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - "No existe" se señala con ErrNotFound; cualquier otro error es fatal para
//     la operación y se propaga.
//   - Las claves de los grant stores son hashes del handle, nunca el handle.
package repository
